package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	appconfig "taifexflow/config"
	"taifexflow/internal/sdk"
	"taifexflow/logger"
)

type fakeCloudWatch struct {
	calls []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.calls = append(f.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublisherSendsDeltas(t *testing.T) {
	fake := &fakeCloudWatch{}
	stats := sdk.Stats{FramesProcessed: 100, Gaps: 3}
	p := &Publisher{
		client:    fake,
		namespace: "TaifexFlow",
		interval:  time.Minute,
		source:    func() sdk.Stats { return stats },
		log:       logger.Logger().WithComponent("cloudwatch"),
	}

	p.publish(context.Background())
	stats.FramesProcessed = 150
	p.publish(context.Background())

	if len(fake.calls) != 2 {
		t.Fatalf("calls = %d", len(fake.calls))
	}
	if *fake.calls[0].Namespace != "TaifexFlow" {
		t.Fatalf("namespace = %s", *fake.calls[0].Namespace)
	}

	var firstFrames, secondFrames float64 = -1, -1
	for _, d := range fake.calls[0].MetricData {
		if *d.MetricName == "FramesProcessed" {
			firstFrames = *d.Value
		}
	}
	for _, d := range fake.calls[1].MetricData {
		if *d.MetricName == "FramesProcessed" {
			secondFrames = *d.Value
		}
	}
	if firstFrames != 100 || secondFrames != 50 {
		t.Fatalf("frame deltas = %v, %v; want 100, 50", firstFrames, secondFrames)
	}
}

func TestNilPublisherRunReturns(t *testing.T) {
	var p *Publisher
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
}

func TestNewPublisherDisabled(t *testing.T) {
	// Enabled false short-circuits before any AWS access.
	p := NewPublisher(appconfig.MetricsConfig{}, func() sdk.Stats { return sdk.Stats{} }, logger.Logger())
	if p != nil {
		t.Fatal("disabled config must return nil publisher")
	}
}
