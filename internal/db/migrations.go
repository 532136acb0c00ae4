package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'submission_status') THEN
			CREATE TYPE submission_status AS ENUM ('draft', 'submitted', 'in_review', 'revision_needed', 'approved', 'rejected', 'completed', 'cancelled');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'submission_document_status') THEN
			CREATE TYPE submission_document_status AS ENUM ('pending', 'approved', 'rejected', 'revision_needed', 'replaced', 'final');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS submission_types (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(64) NOT NULL UNIQUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS workflow_stages (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		submission_type_id UUID NOT NULL REFERENCES submission_types(id) ON DELETE RESTRICT,
		code VARCHAR(64) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		stage_order INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uniq_workflow_stage_order UNIQUE (submission_type_id, stage_order)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_stages_type ON workflow_stages (submission_type_id, stage_order);`,
	`CREATE TABLE IF NOT EXISTS document_requirements (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		submission_type_id UUID NOT NULL REFERENCES submission_types(id) ON DELETE RESTRICT,
		code VARCHAR(64) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		required BOOLEAN NOT NULL DEFAULT FALSE,
		requirement_order INTEGER NOT NULL DEFAULT 0,
		allowed_file_types JSONB,
		max_size_kb BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_document_requirements_type ON document_requirements (submission_type_id);`,
	`CREATE TABLE IF NOT EXISTS stage_requirements (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		workflow_stage_id UUID NOT NULL REFERENCES workflow_stages(id) ON DELETE CASCADE,
		document_requirement_id UUID NOT NULL REFERENCES document_requirements(id) ON DELETE CASCADE,
		is_required BOOLEAN,
		sort_order INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT uniq_stage_requirement UNIQUE (workflow_stage_id, document_requirement_id)
	);`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		serial_no BIGSERIAL NOT NULL UNIQUE,
		submission_type_id UUID NOT NULL REFERENCES submission_types(id) ON DELETE RESTRICT,
		current_stage_id UUID REFERENCES workflow_stages(id) ON DELETE RESTRICT,
		title VARCHAR(500) NOT NULL,
		status submission_status NOT NULL DEFAULT 'draft',
		certificate TEXT,
		certificate_number VARCHAR(32) UNIQUE,
		user_id UUID NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		CONSTRAINT chk_submission_draft_stage CHECK ((status = 'draft') = (current_stage_id IS NULL))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions (status) WHERE deleted_at IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions (user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_current_stage ON submissions (current_stage_id);`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_deleted_at ON submissions (deleted_at);`,
	`CREATE TABLE IF NOT EXISTS submission_details (
		submission_id UUID PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
		kind VARCHAR(64) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		blob_ref TEXT NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		mime_type VARCHAR(128),
		size BIGINT NOT NULL DEFAULT 0,
		uploaded_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS submission_documents (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE RESTRICT,
		requirement_id UUID REFERENCES document_requirements(id) ON DELETE SET NULL,
		status submission_document_status NOT NULL DEFAULT 'pending',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_submission_document_active CHECK (is_active = (status NOT IN ('rejected', 'replaced')))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_submission_documents_submission ON submission_documents (submission_id, requirement_id);`,
	`CREATE TABLE IF NOT EXISTS tracking_histories (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		submission_id UUID NOT NULL REFERENCES submissions(id) ON DELETE RESTRICT,
		sequence BIGINT NOT NULL,
		stage_id UUID REFERENCES workflow_stages(id) ON DELETE RESTRICT,
		previous_stage_id UUID REFERENCES workflow_stages(id) ON DELETE RESTRICT,
		action VARCHAR(64) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		comment TEXT,
		document_id UUID REFERENCES documents(id) ON DELETE RESTRICT,
		processed_by UUID,
		source_status VARCHAR(32),
		target_status VARCHAR(32),
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uniq_tracking_sequence UNIQUE (submission_id, sequence)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_histories_submission ON tracking_histories (submission_id, created_at, sequence);`,
	`CREATE INDEX IF NOT EXISTS idx_tracking_histories_created_at ON tracking_histories (created_at DESC);`,
	`CREATE OR REPLACE FUNCTION reject_tracking_mutation()
	RETURNS TRIGGER AS $$
	BEGIN
		RAISE EXCEPTION 'tracking_histories is append-only';
	END;
	$$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION set_row_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_tracking_histories_append_only') THEN
			CREATE TRIGGER trg_tracking_histories_append_only
				BEFORE UPDATE OR DELETE ON tracking_histories
				FOR EACH ROW
				EXECUTE PROCEDURE reject_tracking_mutation();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_submission_types_updated_at') THEN
			CREATE TRIGGER trg_submission_types_updated_at
				BEFORE UPDATE ON submission_types
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_workflow_stages_updated_at') THEN
			CREATE TRIGGER trg_workflow_stages_updated_at
				BEFORE UPDATE ON workflow_stages
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_submissions_updated_at') THEN
			CREATE TRIGGER trg_submissions_updated_at
				BEFORE UPDATE ON submissions
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_submission_documents_updated_at') THEN
			CREATE TRIGGER trg_submission_documents_updated_at
				BEFORE UPDATE ON submission_documents
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
	END
	$$;`,
}

// migrationLockKey serialises schema changes across replicas starting at
// the same time.
const migrationLockKey = 7_090_001

// runMigrations applies every statement on one pinned connection while
// holding a session advisory lock. Statements are idempotent.
func runMigrations(ctx context.Context, database *gorm.DB) (int, error) {
	applied := 0
	err := database.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", migrationLockKey).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", migrationLockKey)

		for i, stmt := range migrationStatements {
			if err := conn.Exec(stmt).Error; err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
			applied++
		}
		return nil
	})
	return applied, err
}
