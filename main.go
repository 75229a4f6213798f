package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/jdwit/ocr-trigger/internal/config"
	"github.com/jdwit/ocr-trigger/internal/processor"
)

func createSession(endpoint string) (*session.Session, error) {
	if endpoint != "" {
		// localstack or the GCS interoperability API
		return session.NewSession(&aws.Config{
			Endpoint:         aws.String(endpoint),
			DisableSSL:       aws.Bool(strings.HasPrefix(endpoint, "http://")),
			S3ForcePathStyle: aws.Bool(true),
		})
	}

	return session.NewSession()
}

func main() {
	cfg := config.Load()

	sess, err := createSession(cfg.Endpoint)
	if err != nil {
		log.Fatalln(err)
	}

	p, err := processor.NewProcessor(sess, cfg)
	if err != nil {
		log.Fatalln(err)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		log.Println("running in AWS Lambda environment")
		lambda.Start(p.HandleLambdaEvent)
	} else {
		log.Println("running in cli mode")
		if len(os.Args) < 2 {
			log.Fatalln("gs:// url is required as an argument")
		}
		if err := p.HandleStorageURL(context.Background(), os.Args[1]); err != nil {
			log.Fatalln(err)
		}
	}
}
