// Package fetcher turns the eligible-lead query into claimed review batches.
package fetcher
