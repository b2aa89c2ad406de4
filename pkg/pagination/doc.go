// Package pagination walks cursor-paginated registry listings.
//
// The registry's list endpoints return a JSON envelope with a results
// array and a next-page link. Each page's URL is only discovered from
// the previous page's response, so the walk is strictly sequential.
//
// Example usage:
//
//	cfg := query.DefaultConfig()
//	cfg.MinID = 60000000
//
//	transport, _ := client.New(client.DefaultConfig("atlas-fetch/1.0"))
//	engine, _ := pagination.NewEngine(pagination.EngineConfig{Query: cfg},
//		pagination.NewFetcher(transport))
//
//	result := engine.Run(ctx, func(rec pagination.Record) error {
//		return sink.Write(rec)
//	})
//
// The engine:
//   - Streams records to the caller page by page, in API order
//   - Absorbs nothing itself: retryable failures never reach it, and
//     every fetcher error is terminal
//   - Halts early once IDs cross the configured threshold under "-id"
//     sort
//   - Surfaces the in-flight cursor on abort or interrupt so the run
//     can resume later from exactly that point
package pagination
