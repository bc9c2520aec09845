// Package sqlite persists localization runs: one row per run with its
// tuning, and one row per filter step with the summary statistics, the
// estimate, the best particle and its association record, and the ground
// truth when the input carried it.
//
// The schema is embedded and applied with golang-migrate on Open.
package sqlite
