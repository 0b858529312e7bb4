package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [up|drop|seed]")
		os.Exit(1)
	}
	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("All tables created successfully")

	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("All tables dropped successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			product_type TEXT NOT NULL DEFAULT '',
			regular_price NUMERIC(12,2) NOT NULL,
			group_price NUMERIC(12,2) NOT NULL,
			min_participants INT NOT NULL CHECK (min_participants >= 1),
			max_participants INT,
			campaign_start_date TIMESTAMPTZ NOT NULL,
			campaign_end_date TIMESTAMPTZ NOT NULL,
			duration_hours INT NOT NULL CHECK (duration_hours >= 1),
			total_slots INT,
			available_slots INT,
			max_pax INT,
			allow_partial_payment BOOLEAN NOT NULL DEFAULT FALSE,
			partial_payment_type TEXT NOT NULL DEFAULT '',
			partial_payment_value NUMERIC(12,2),
			auto_cancel_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			auto_cancel_hours INT NOT NULL DEFAULT 4,
			auto_cancel_send_email BOOLEAN NOT NULL DEFAULT FALSE,
			special_booker_codes TEXT[] NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'active',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS groups (
			id BIGSERIAL PRIMARY KEY,
			campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
			group_code TEXT NOT NULL UNIQUE,
			share_token TEXT NOT NULL UNIQUE,
			custom_name TEXT NOT NULL DEFAULT '',
			leader_name TEXT NOT NULL,
			leader_email TEXT NOT NULL,
			leader_phone TEXT NOT NULL DEFAULT '',
			leader_customer_id BIGINT,
			current_participants INT NOT NULL DEFAULT 0,
			required_participants INT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS participants (
			id BIGSERIAL PRIMARY KEY,
			group_id BIGINT NOT NULL REFERENCES groups(id),
			campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
			participant_name TEXT NOT NULL,
			participant_email TEXT NOT NULL,
			participant_phone TEXT NOT NULL DEFAULT '',
			is_leader BOOLEAN NOT NULL DEFAULT FALSE,
			join_order INT NOT NULL,
			pax_count INT NOT NULL CHECK (pax_count >= 1),
			payment_id BIGINT,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_amount NUMERIC(12,2) NOT NULL,
			payment_date TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'active',
			cancel_reason TEXT NOT NULL DEFAULT '',
			cancelled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (group_id, join_order)
		)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			campaign_id BIGINT NOT NULL REFERENCES campaigns(id),
			group_id BIGINT NOT NULL REFERENCES groups(id),
			participant_id BIGINT NOT NULL REFERENCES participants(id),
			payment_method TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			fee_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			total_amount NUMERIC(12,2) NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_timeout TIMESTAMPTZ NOT NULL,
			slip_image TEXT NOT NULL DEFAULT '',
			transfer_date TEXT NOT NULL DEFAULT '',
			transfer_time TEXT NOT NULL DEFAULT '',
			admin_verified_by TEXT NOT NULL DEFAULT '',
			admin_verified_at TIMESTAMPTZ,
			admin_notes TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMPTZ,
			gateway_charge_id TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			refund_amount NUMERIC(12,2),
			refund_reason TEXT NOT NULL DEFAULT '',
			refunded_at TIMESTAMPTZ,
			refunded_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_groups_campaign_status ON groups (campaign_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_groups_status_expires ON groups (status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_group_status ON participants (group_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_campaign_email ON participants (campaign_id, lower(participant_email))`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status_timeout ON payments (payment_status, payment_timeout)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_participant ON payments (participant_id)`,
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	tables := []string{"payments", "participants", "groups", "campaigns"}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO campaigns (
			name, product_type, regular_price, group_price,
			min_participants, max_participants,
			campaign_start_date, campaign_end_date, duration_hours,
			total_slots, available_slots, max_pax,
			allow_partial_payment, partial_payment_type, partial_payment_value,
			auto_cancel_enabled, auto_cancel_hours, auto_cancel_send_email,
			special_booker_codes, status, is_active
		) VALUES (
			'Chiang Mai Lantern Festival 4D3N', 'tour', 18900.00, 14900.00,
			4, 8,
			NOW(), NOW() + INTERVAL '30 days', 48,
			10, 10, 40,
			TRUE, 'percentage', 20.00,
			TRUE, 4, TRUE,
			ARRAY['AGENT-TRV'], 'active', TRUE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}
	return nil
}
