package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id          VARCHAR(36)   NOT NULL PRIMARY KEY,
		code        VARCHAR(50)   NOT NULL,
		description VARCHAR(255)  NOT NULL,
		kind        ENUM('RAW_MATERIAL', 'FINISHED_GOOD') NOT NULL,
		unit        VARCHAR(20)   NOT NULL,
		min_stock   DECIMAL(20,4) NOT NULL DEFAULT 0,
		stock       DECIMAL(20,4) NOT NULL DEFAULT 0,
		unit_value  DECIMAL(20,4) NOT NULL DEFAULT 0,
		version     INT           NOT NULL DEFAULT 0,
		created_at  DATETIME(6)   NOT NULL,
		updated_at  DATETIME(6)   NOT NULL,
		UNIQUE KEY uq_items_code (code)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS movements (
		seq          BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id           VARCHAR(36)   NOT NULL,
		item_id      VARCHAR(36)   NOT NULL,
		kind         VARCHAR(32)   NOT NULL,
		quantity     DECIMAL(20,4) NOT NULL,
		user_id      VARCHAR(64)   NOT NULL,
		note         TEXT          NULL,
		stock_before DECIMAL(20,4) NOT NULL,
		stock_after  DECIMAL(20,4) NOT NULL,
		created_at   DATETIME(6)   NOT NULL,
		UNIQUE KEY uq_movements_id (id),
		KEY idx_movements_item (item_id, seq),
		KEY idx_movements_kind (kind, seq),
		CONSTRAINT fk_movements_item FOREIGN KEY (item_id) REFERENCES items (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS movement_components (
		movement_id VARCHAR(36)   NOT NULL,
		item_id     VARCHAR(36)   NOT NULL,
		item_code   VARCHAR(50)   NOT NULL,
		quantity    DECIMAL(20,4) NOT NULL,
		position    INT           NOT NULL DEFAULT 0,
		PRIMARY KEY (movement_id, item_id),
		CONSTRAINT fk_components_movement FOREIGN KEY (movement_id) REFERENCES movements (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS recipe_components (
		finished_good_id  VARCHAR(36)   NOT NULL,
		raw_material_id   VARCHAR(36)   NULL,
		quantity_per_unit DECIMAL(20,4) NOT NULL,
		position          INT           NOT NULL DEFAULT 0,
		UNIQUE KEY uq_recipe_component (finished_good_id, raw_material_id),
		CONSTRAINT fk_recipe_finished_good FOREIGN KEY (finished_good_id) REFERENCES items (id),
		CONSTRAINT fk_recipe_raw_material FOREIGN KEY (raw_material_id) REFERENCES items (id)
	) ENGINE=InnoDB`,

	// The ledger is append-only.
	`DROP TRIGGER IF EXISTS movements_no_update`,
	`CREATE TRIGGER movements_no_update BEFORE UPDATE ON movements FOR EACH ROW
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'movements are append-only'`,
	`DROP TRIGGER IF EXISTS movements_no_delete`,
	`CREATE TRIGGER movements_no_delete BEFORE DELETE ON movements FOR EACH ROW
		SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'movements are append-only'`,
}

// Migrate creates the tables and ledger triggers when they are missing.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
