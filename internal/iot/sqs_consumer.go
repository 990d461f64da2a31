package iot

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vendotrash/internal/config"
)

// EventHandler processes one telemetry message body. A nil error deletes the message.
type EventHandler interface {
	HandleDeviceEvent(ctx context.Context, body string) error
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSConsumer struct {
	sqsClient  sqsAPI
	queueURL   string
	handler    EventHandler
	retryDelay time.Duration
	waitTime   int32
}

func NewSQSConsumer(client *sqs.Client, cfg *config.Config, handler EventHandler) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   cfg.SQSEventQueueURL,
		handler:    handler,
		retryDelay: 5 * time.Second,
		waitTime:   20,
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("SQSConsumer: listening on queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("SQSConsumer: context cancelled, stopping.")
			return
		default:
			receiveInput := &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(c.queueURL),
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     c.waitTime,
				VisibilityTimeout:   60,
			}

			result, err := c.sqsClient.ReceiveMessage(ctx, receiveInput)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("SQSConsumer: receive failed: %v", err)
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					log.Println("SQSConsumer: context cancelled while waiting for retry.")
					return
				}
				continue
			}

			if len(result.Messages) == 0 {
				continue
			}

			log.Printf("SQSConsumer: received %d message(s)", len(result.Messages))

			for _, message := range result.Messages {
				if message.Body == nil {
					log.Println("SQSConsumer: empty message body, deleting")
					c.deleteMessage(ctx, message.ReceiptHandle)
					continue
				}

				processingErr := c.handler.HandleDeviceEvent(ctx, *message.Body)

				if processingErr == nil {
					c.deleteMessage(ctx, message.ReceiptHandle)
				} else {
					log.Printf("SQSConsumer: message %s failed: %v. It will be redelivered after the visibility timeout.",
						aws.ToString(message.MessageId), processingErr)
				}
			}
		}
	}
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Println("SQSConsumer: missing receipt handle, cannot delete message")
		return
	}
	_, delErr := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if delErr != nil {
		log.Printf("SQSConsumer: delete failed: %v", delErr)
	}
}
