// Package metrics periodically publishes pipeline counters to
// CloudWatch. Publishing failures are logged and never touch the
// pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "taifexflow/config"
	"taifexflow/internal/sdk"
	"taifexflow/logger"
)

type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher ships counter deltas on a fixed interval. Source must be
// safe to call from the publisher goroutine.
type Publisher struct {
	client    cloudwatchAPI
	namespace string
	interval  time.Duration
	source    func() sdk.Stats
	log       *logger.Entry

	last sdk.Stats
}

// NewPublisher builds a CloudWatch publisher. When the AWS configuration
// cannot be loaded a warning is logged and a nil publisher is returned;
// callers treat nil as metrics-disabled.
func NewPublisher(cfg appconfig.MetricsConfig, source func() sdk.Stats, log *logger.Log) *Publisher {
	entry := log.WithComponent("cloudwatch")
	if !cfg.Enabled {
		return nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		entry.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return nil
	}

	return &Publisher{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		interval:  cfg.Interval,
		source:    source,
		log:       entry,
	}
}

// Run publishes until the context ends. Safe to call on a nil publisher.
func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.publish(ctx)
			return
		case <-ticker.C:
			p.publish(ctx)
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	cur := p.source()
	delta := sdk.Stats{
		FramesProcessed: cur.FramesProcessed - p.last.FramesProcessed,
		FramesDropped:   cur.FramesDropped - p.last.FramesDropped,
		Replays:         cur.Replays - p.last.Replays,
		Gaps:            cur.Gaps - p.last.Gaps,
		GapMessages:     cur.GapMessages - p.last.GapMessages,
		Resets:          cur.Resets - p.last.Resets,
		BookUpdates:     cur.BookUpdates - p.last.BookUpdates,
		BooksCreated:    cur.BooksCreated - p.last.BooksCreated,
	}
	p.last = cur

	data := []cwtypes.MetricDatum{
		datum("FramesProcessed", delta.FramesProcessed),
		datum("FramesDropped", delta.FramesDropped),
		datum("SequenceReplays", delta.Replays),
		datum("SequenceGaps", delta.Gaps),
		datum("MissingMessages", delta.GapMessages),
		datum("SequenceResets", delta.Resets),
		datum("BookUpdates", delta.BookUpdates),
		datum("BooksCreated", delta.BooksCreated),
	}

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_, err := p.client.PutMetricData(putCtx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		p.log.WithError(err).Warn("failed to publish metrics")
		return
	}
	p.log.WithFields(logger.Fields{
		"frames": delta.FramesProcessed,
		"gaps":   delta.Gaps,
	}).Debug("metrics published")
}

func datum(name string, v uint64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(float64(v)),
	}
}
