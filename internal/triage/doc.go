// Package triage provides the business boundary for MedAssist's symptom triage.
// It defines the Engine (pure rule-table classification), the Service
// (persistence, notification, metrics), the Store interface and the domain models.
package triage
