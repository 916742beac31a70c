package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250802-143000",
		Description: "index for operator reconciliation queries",
		Up: []string{
			`CREATE INDEX IF NOT EXISTS idx_orders_provider_ref ON orders(provider, gateway_ref)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_unfulfilled ON orders(status, updated_at)`,
		},
	})
}
