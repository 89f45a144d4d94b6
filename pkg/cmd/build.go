package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/activity"
	"github.com/telekom/m365-audit-ingest/pkg/auth"
	"github.com/telekom/m365-audit-ingest/pkg/config"
	"github.com/telekom/m365-audit-ingest/pkg/pipeline"
	"github.com/telekom/m365-audit-ingest/pkg/sink"
)

// buildPipeline wires the token source, feed client and sinks from the
// loaded config into a ready-to-run pipeline.
func buildPipeline(ctx context.Context, rt *runtimeState) (*pipeline.Pipeline, error) {
	cfg := rt.cfg
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := rt.Logger()

	clientSecret, err := cfg.ResolveClientSecret()
	if err != nil {
		return nil, err
	}
	sharedKey, err := cfg.ResolveSharedKey()
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewSource(ctx, auth.Config{
		ClientID:     cfg.Source.ClientID,
		ClientSecret: clientSecret,
		Scope:        cfg.Scope(),
		Authority:    cfg.AuthorityURL(),
		TokenURL:     cfg.Source.TokenURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building token source: %w", err)
	}

	feed, err := activity.NewClient(activity.ClientConfig{
		APIBase:     cfg.Source.APIBase,
		TenantID:    cfg.Source.TenantID,
		ContentType: cfg.Source.ContentType,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building feed client: %w", err)
	}

	forwarder, err := sink.NewLogAnalyticsSink(sink.LogAnalyticsConfig{
		WorkspaceID: cfg.Collector.WorkspaceID,
		SharedKey:   sharedKey,
		LogType:     cfg.LogType(),
		Endpoint:    cfg.Collector.Endpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building collector sink: %w", err)
	}

	var mirrors []sink.Sink
	if cfg.Kafka != nil {
		kafkaSink, err := sink.NewKafkaSink(kafkaSinkConfig(cfg.Kafka), logger)
		if err != nil {
			return nil, fmt.Errorf("building kafka mirror: %w", err)
		}
		mirrors = append(mirrors, kafkaSink)
	}
	if rt.debug {
		mirrors = append(mirrors, sink.NewLogSink(logger))
	}

	return pipeline.New(pipeline.Config{
		Lookback: cfg.Lookback(),
		Strict:   rt.strict || cfg.Pipeline.Strict,
	}, tokens, feed, forwarder, mirrors, logger), nil
}

func kafkaSinkConfig(cfg *config.KafkaConfig) sink.KafkaSinkConfig {
	out := sink.KafkaSinkConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	}
	if cfg.TLS != nil {
		out.TLS = &sink.KafkaTLSConfig{
			Enabled:            cfg.TLS.Enabled,
			CAFile:             cfg.TLS.CAFile,
			CertFile:           cfg.TLS.CertFile,
			KeyFile:            cfg.TLS.KeyFile,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}
	if cfg.SASL != nil {
		out.SASL = &sink.KafkaSASLConfig{
			Mechanism: cfg.SASL.Mechanism,
			Username:  cfg.SASL.Username,
			Password:  cfg.SASL.Password,
		}
	}
	return out
}

func logResult(logger *zap.Logger, res *pipeline.Result) {
	if res == nil {
		return
	}
	logger.Info("invocation finished",
		zap.String("invocation", res.Invocation),
		zap.Time("windowStart", res.WindowStart),
		zap.Time("windowEnd", res.WindowEnd),
		zap.Int("blobsListed", res.BlobsListed),
		zap.Int("recordsFetched", res.RecordsFetched),
		zap.Int("recordsRelevant", res.RecordsRelevant),
		zap.Int("recordsForwarded", res.RecordsForwarded),
	)
}
