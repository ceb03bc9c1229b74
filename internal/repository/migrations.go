package repository

// Schema statements applied in order by Migrate. Statements are idempotent
// so every process can run them at startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stages (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		ord INT NOT NULL DEFAULT 0,
		default_role TEXT,
		status TEXT,
		required_artifacts JSONB NOT NULL DEFAULT '[]'::jsonb,
		required_gates JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stages_name_category
		ON stages (name, (COALESCE(category, '')))`,

	`CREATE TABLE IF NOT EXISTS workflow_templates (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL UNIQUE,
		stage_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
		always_available JSONB NOT NULL DEFAULT '[]'::jsonb,
		stage_notes JSONB NOT NULL DEFAULT '{}'::jsonb,
		gate_runs JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS work_items (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT,
		stage_id UUID NOT NULL REFERENCES stages(id),
		position INT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		artifacts JSONB NOT NULL DEFAULT '{}'::jsonb,
		assigned_worker_id UUID,
		assigned_user_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS work_items_stage_position
		ON work_items (stage_id, position)`,

	`CREATE TABLE IF NOT EXISTS workers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		capabilities JSONB NOT NULL DEFAULT '[]'::jsonb,
		status TEXT NOT NULL DEFAULT 'IDLE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS workers_role ON workers (role)`,

	`CREATE TABLE IF NOT EXISTS schedule_definitions (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		expr TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT true,
		next_due_at TIMESTAMPTZ,
		trigger_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS schedule_definitions_due
		ON schedule_definitions (next_due_at) WHERE enabled`,

	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		schedule_id UUID REFERENCES schedule_definitions(id),
		work_item_id UUID REFERENCES work_items(id),
		run_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		retry_requested BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS runs_schedule ON runs (schedule_id)`,
	`CREATE INDEX IF NOT EXISTS runs_work_item ON runs (work_item_id, run_type, status)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_kind TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		detail JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_entity
		ON audit_log (entity_type, entity_id, id)`,
}
