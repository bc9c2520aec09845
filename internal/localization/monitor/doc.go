// Package monitor renders localization runs for humans: per-step particle
// scatter plots as PNG files, and an HTML trajectory chart comparing the
// estimate with ground truth that can be written to disk or served live.
package monitor
