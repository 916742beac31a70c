package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "initial schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS orders (
				id TEXT PRIMARY KEY,
				product_id TEXT NOT NULL,
				email TEXT NOT NULL,
				amount TEXT NOT NULL,
				currency TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				provider TEXT NOT NULL,
				gateway_ref TEXT,
				referral_code TEXT,
				agent_code TEXT,
				renewal_period TEXT NOT NULL DEFAULT '',
				completed_at TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

			`CREATE TABLE IF NOT EXISTS user_accounts (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				password_hash TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				search_count INTEGER NOT NULL DEFAULT 0,
				export_count INTEGER NOT NULL DEFAULT 0,
				last_reset_date TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				disabled_at TEXT
			)`,

			`CREATE TABLE IF NOT EXISTS license_keys (
				id TEXT PRIMARY KEY,
				key TEXT NOT NULL UNIQUE,
				family TEXT NOT NULL,
				product_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'available',
				activated_by TEXT,
				activated_at TEXT,
				order_id TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_license_keys_pool ON license_keys(family, status)`,

			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS password_resets (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_hash TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				used_at TEXT,
				created_at TEXT NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_password_resets_token ON password_resets(token_hash)`,

			`CREATE TABLE IF NOT EXISTS agents (
				code TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				default_rate TEXT NOT NULL DEFAULT '0.1',
				total_commission TEXT NOT NULL DEFAULT '0',
				balance TEXT NOT NULL DEFAULT '0',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS promotions (
				code TEXT PRIMARY KEY,
				agent_code TEXT NOT NULL,
				product_type TEXT NOT NULL,
				rate TEXT NOT NULL,
				conversions INTEGER NOT NULL DEFAULT 0,
				total_commission TEXT NOT NULL DEFAULT '0',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (agent_code) REFERENCES agents(code)
			)`,

			`CREATE TABLE IF NOT EXISTS product_orders (
				id TEXT PRIMARY KEY,
				order_id TEXT NOT NULL,
				agent_code TEXT NOT NULL,
				promotion_code TEXT,
				product_id TEXT NOT NULL,
				price TEXT NOT NULL,
				rate TEXT NOT NULL,
				commission TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_product_orders_order ON product_orders(order_id)`,
		},
	})
}
