// Package gologger resolves the loggers the sync components run with and
// bridges them to go-job's logging contracts for queue-backed crawl workers.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Component resolves the named component's logger with deterministic
// precedence: provider, then fallback logger, then nop. Every engine
// component (credentials, crawl orchestration, ingesters) gets its logger
// here so hosts can swap the whole logging surface with one provider.
func Component(name string, provider glog.LoggerProvider, fallback glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, fallback)
}

// CrawlJobProvider maps a resolved provider to the go-job contract so crawl
// workers log through the same surface as the engine.
func CrawlJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// CrawlJobLogger maps a resolved logger to the go-job contract.
func CrawlJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ComponentForCrawlJob resolves a component logger and returns it alongside
// the go-job equivalents, for wiring one crawl worker in one call.
func ComponentForCrawlJob(
	name string,
	provider glog.LoggerProvider,
	fallback glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Component(name, provider, fallback)
	return resolvedProvider, resolvedLogger, CrawlJobProvider(resolvedProvider), CrawlJobLogger(resolvedLogger)
}
