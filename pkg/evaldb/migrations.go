package evaldb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE eval_pass(
			id INTEGER PRIMARY KEY,
			time INT NOT NULL,
			split TEXT NOT NULL,
			model TEXT NOT NULL,
			num_classes INT NOT NULL,
			headline_class INT NOT NULL,
			headline_iou REAL,
			headline_accuracy REAL,
			mean_iou REAL,
			mean_accuracy REAL,
			batch_mean_iou REAL,
			pixels INT NOT NULL,
			detail TEXT
		);
		CREATE INDEX idx_eval_pass_split_time ON eval_pass(split, time);
		`))

	return migs
}
