// Command strata-stream is an AWS Lambda function consuming the DynamoDB
// stream of a strata table. It decodes every change against the configured
// schema and logs it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/strata/internal/config"
	"github.com/jacentio/strata/stream"
)

func main() {
	handler, err := newHandler(os.Getenv("STRATA_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	lambda.Start(handler.HandleEvent)
}

func newHandler(configFile string) (*stream.Handler, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger("stream")
	client, err := cfg.Open(context.Background(), logger)
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Registry(client)
	if err != nil {
		return nil, err
	}

	h := stream.NewHandler(registry, logger)
	audit := stream.LogChanges(logger)
	for _, kind := range registry.Kinds() {
		h.On(kind, audit)
	}
	return h, nil
}
