// Package retry retries durable store operations that fail for transient
// reasons: dropped connections and resource exhaustion on Postgres,
// transaction conflicts on Badger.
//
//	exec := retry.NewExecutor(retry.PostgresClassifier{}, retry.NewBackoff(3))
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return pool.Ping(ctx)
//	})
package retry
