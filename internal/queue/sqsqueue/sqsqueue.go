package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/geocoder89/replayhub/internal/domain/job"
	"github.com/geocoder89/replayhub/internal/queue"
)

const (
	// SQS caps per-message delay at 900 seconds; longer delays clamp.
	maxDelay = 900 * time.Second

	visibilityTimeout = 300
	waitTimeSeconds   = 20
)

// API is the slice of the SQS client this queue needs. *sqs.Client
// satisfies it; tests provide a fake.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Queue wraps an SQS queue. Dequeue long-polls a single message with a
// visibility timeout; Acknowledge deletes it by receipt handle. Reject
// simply drops the handle so the message resurfaces when the visibility
// timeout lapses; redrive/dead-letter is the broker's job.
type Queue struct {
	client   API
	queueURL string

	mu       sync.Mutex
	receipts map[string]string // job id -> receipt handle
}

func New(client API, queueURL string) *Queue {
	return &Queue{
		client:   client,
		queueURL: queueURL,
		receipts: make(map[string]string),
	}
}

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, opts job.Options) (string, error) {
	j := job.New(jobType, payload, opts)

	var delay time.Duration

	if j.ScheduledFor != nil {
		delay = time.Until(*j.ScheduledFor)
	}

	if delay < 0 {
		delay = 0
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	body, err := json.Marshal(j)

	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})

	if err != nil {
		return "", fmt.Errorf("sqs send: %w", err)
	}

	return j.ID, nil
}

func (q *Queue) Dequeue(ctx context.Context) (*job.Job, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     waitTimeSeconds,
		VisibilityTimeout:   visibilityTimeout,
	})

	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]

	var j job.Job

	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &j); err != nil {
		// Malformed message: delete so it does not poison the queue.
		_, _ = q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		return nil, fmt.Errorf("unmarshal job body: %w", err)
	}

	j.ReceiptHandle = aws.ToString(msg.ReceiptHandle)

	q.mu.Lock()
	q.receipts[j.ID] = j.ReceiptHandle
	q.mu.Unlock()

	return &j, nil
}

func (q *Queue) Acknowledge(ctx context.Context, id string) error {
	q.mu.Lock()
	handle, ok := q.receipts[id]
	delete(q.receipts, id)
	q.mu.Unlock()

	if !ok {
		return nil
	}

	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(handle),
	})

	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}

	return nil
}

func (q *Queue) Reject(ctx context.Context, id string, cause error) error {
	// Leave the message invisible until the visibility timeout expires.
	q.mu.Lock()
	delete(q.receipts, id)
	q.mu.Unlock()

	return nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeNameApproximateNumberOfMessages,
			types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
		},
	})

	if err != nil {
		return queue.Stats{}, fmt.Errorf("sqs attributes: %w", err)
	}

	depth, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	processing, _ := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)])

	return queue.Stats{Depth: depth, Processing: processing}, nil
}

var _ queue.Queue = (*Queue)(nil)
