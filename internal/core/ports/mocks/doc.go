// Package mocks provides test doubles for ports interfaces.
//
// These mocks are simple, thread-safe implementations of the outbound service
// ports, suitable for unit testing. Each mock provides:
//
//   - Default behavior that returns reasonable test values
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Call counters for asserting how often a dependency was hit
//
// # Usage Example
//
//	func TestMyStage(t *testing.T) {
//		judge := mocks.NewJudge(72)
//		judge.JudgeFn = func(_ context.Context, item domain.CandidateItem) (domain.Judgement, error) {
//			return domain.Judgement{Score: 10}, nil
//		}
//		// ... test stage behavior
//	}
//
// # Available Mocks
//
//   - FeedFetcher: implements ports.FeedFetcher
//   - Judge: implements ports.Judge
//   - ContentFetcher: implements ports.ContentFetcher
//   - Extractor: implements ports.Extractor
//   - KeywordMetrics: implements ports.KeywordMetrics
//
// Stores have real in-process implementations in storage/memory.
package mocks
