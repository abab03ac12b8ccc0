package reporting

// Table definitions. Every statement is idempotent.
var schemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS raw_data`,
	`CREATE SCHEMA IF NOT EXISTS normalized_data`,

	`CREATE TABLE IF NOT EXISTS raw_data.raw_transactions (
		row_id     BIGSERIAL PRIMARY KEY,
		id         VARCHAR(64),
		name       VARCHAR(130),
		company_id VARCHAR(64),
		amount     VARCHAR(64),
		status     VARCHAR(50),
		created_at VARCHAR(50),
		paid_at    VARCHAR(50),
		load_id    UUID NOT NULL,
		loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_id ON raw_data.raw_transactions (id)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_company_id ON raw_data.raw_transactions (company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_created_at ON raw_data.raw_transactions (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_load_id ON raw_data.raw_transactions (load_id)`,

	`CREATE TABLE IF NOT EXISTS normalized_data.companies (
		company_id   VARCHAR(24) PRIMARY KEY,
		company_name VARCHAR(130) NOT NULL,
		created_at   TIMESTAMP NOT NULL DEFAULT now(),
		updated_at   TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_company_name ON normalized_data.companies (company_name)`,

	`CREATE TABLE IF NOT EXISTS normalized_data.charges (
		id         VARCHAR(24) PRIMARY KEY,
		company_id VARCHAR(24) NOT NULL
			CONSTRAINT fk_charges_company REFERENCES normalized_data.companies (company_id),
		amount     NUMERIC(16, 2) NOT NULL CHECK (amount >= 0),
		status     VARCHAR(30) NOT NULL CHECK (status IN
			('paid', 'pending_payment', 'voided', 'refunded', 'pre_authorized', 'charged_back')),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_company_id ON normalized_data.charges (company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_created_at ON normalized_data.charges (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_status ON normalized_data.charges (status)`,
	`CREATE INDEX IF NOT EXISTS idx_charge_date_company ON normalized_data.charges (created_at, company_id)`,
}

const dropViewSQL = `DROP VIEW IF EXISTS normalized_data.daily_transaction_summary CASCADE`

// createViewSQL aggregates paid and refunded charges per day and company.
const createViewSQL = `
CREATE VIEW normalized_data.daily_transaction_summary AS
SELECT
	DATE(c.created_at)                                             AS transaction_date,
	comp.company_name,
	comp.company_id,
	SUM(c.amount)                                                  AS total_amount,
	COUNT(*)                                                       AS transaction_count,
	AVG(c.amount)                                                  AS average_amount,
	MIN(c.amount)                                                  AS min_amount,
	MAX(c.amount)                                                  AS max_amount,
	COUNT(*) FILTER (WHERE c.status = 'paid')                      AS paid_count,
	COUNT(*) FILTER (WHERE c.status = 'refunded')                  AS refunded_count,
	COALESCE(SUM(c.amount) FILTER (WHERE c.status = 'paid'), 0)     AS paid_amount,
	COALESCE(SUM(c.amount) FILTER (WHERE c.status = 'refunded'), 0) AS refunded_amount
FROM normalized_data.charges c
JOIN normalized_data.companies comp ON c.company_id = comp.company_id
WHERE c.status IN ('paid', 'refunded')
GROUP BY DATE(c.created_at), comp.company_id, comp.company_name`

// reportingIndexes support the view's filter and grouping.
var reportingIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_charges_date_company_status
		ON normalized_data.charges (created_at, company_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_charges_amount_status
		ON normalized_data.charges (amount, status)
		WHERE status IN ('paid', 'refunded')`,
	`CREATE INDEX IF NOT EXISTS idx_charges_paid_refunded
		ON normalized_data.charges (created_at, company_id, amount)
		WHERE status IN ('paid', 'refunded')`,
	`CREATE INDEX IF NOT EXISTS idx_companies_name_id
		ON normalized_data.companies (company_name, company_id)`,
}
