// Package cron schedules recurring workflow executions from the cron
// triggers declared on workflow definitions.
//
// A definition carries its triggers as metadata; the engine itself is
// trigger-agnostic. This package is the caller layer that turns a
// trigger like
//
//	{"type": "cron", "config": {"schedule": "*/5 * * * *"}}
//
// into periodic Execute calls. Schedules use standard 5-field cron
// expressions or descriptors such as "@every 30s".
//
// The scheduler is in-process and fires on every instance running it;
// deployments with multiple instances should run it on one.
package cron
