package sqlstore

import (
	"github.com/nainya/assetcatalog/pkg/migrate"
)

// VersionTable records the applied schema versions.
const VersionTable = "schema_versions"

// Migration returns the ordered schema history for dialect d.
func Migration(d Dialect) *migrate.Migration {
	return &migrate.Migration{
		Table:  VersionTable,
		Rebind: d.Rebind,
		Steps: []*migrate.Step{
			{
				Description: "Create artifact hierarchy tables",
				Version:     0,
				Up: migrate.SQL{
					`CREATE TABLE artifacts (
						bucket TEXT NOT NULL,
						"key" TEXT NOT NULL,
						size BIGINT,
						name TEXT,
						platform_type TEXT NOT NULL DEFAULT 'ground',
						notes TEXT,
						session_name TEXT,
						sequence_number BIGINT,
						capture_date ` + d.Timestamp + `,
						location_lat DOUBLE PRECISION,
						location_lon DOUBLE PRECISION,
						location_description TEXT,
						PRIMARY KEY (bucket, "key")
					)`,
					`CREATE TABLE rasters (
						bucket TEXT NOT NULL,
						"key" TEXT NOT NULL,
						camera TEXT,
						PRIMARY KEY (bucket, "key"),
						FOREIGN KEY (bucket, "key") REFERENCES artifacts (bucket, "key") ON DELETE CASCADE
					)`,
					`CREATE TABLE images (
						bucket TEXT NOT NULL,
						"key" TEXT NOT NULL,
						format TEXT,
						PRIMARY KEY (bucket, "key"),
						FOREIGN KEY (bucket, "key") REFERENCES rasters (bucket, "key") ON DELETE CASCADE
					)`,
					`CREATE TABLE videos (
						bucket TEXT NOT NULL,
						"key" TEXT NOT NULL,
						format TEXT,
						frame_rate DOUBLE PRECISION,
						num_frames BIGINT,
						PRIMARY KEY (bucket, "key"),
						FOREIGN KEY (bucket, "key") REFERENCES rasters (bucket, "key") ON DELETE CASCADE
					)`,
				},
				Down: migrate.SQL{
					`DROP TABLE videos`,
					`DROP TABLE images`,
					`DROP TABLE rasters`,
					`DROP TABLE artifacts`,
				},
			},
			{
				Description: "Index filtered and sorted columns",
				Version:     1,
				Up: migrate.SQL{
					`CREATE INDEX artifacts_name_idx ON artifacts (name)`,
					`CREATE INDEX artifacts_session_name_idx ON artifacts (session_name, sequence_number)`,
					`CREATE INDEX artifacts_capture_date_idx ON artifacts (capture_date)`,
					`CREATE INDEX artifacts_notes_idx ON artifacts (notes)`,
					`CREATE INDEX rasters_camera_idx ON rasters (camera)`,
				},
				Down: migrate.SQL{
					`DROP INDEX rasters_camera_idx`,
					`DROP INDEX artifacts_notes_idx`,
					`DROP INDEX artifacts_capture_date_idx`,
					`DROP INDEX artifacts_session_name_idx`,
					`DROP INDEX artifacts_name_idx`,
				},
			},
			{
				Description: "Add UAV survey columns to rasters",
				Version:     2,
				Up: migrate.SQL{
					`ALTER TABLE rasters ADD COLUMN uav BOOLEAN NOT NULL DEFAULT FALSE`,
					`ALTER TABLE rasters ADD COLUMN altitude_meters DOUBLE PRECISION`,
					`ALTER TABLE rasters ADD COLUMN gsd_cm_px DOUBLE PRECISION`,
				},
				Down: migrate.SQL{
					`ALTER TABLE rasters DROP COLUMN gsd_cm_px`,
					`ALTER TABLE rasters DROP COLUMN altitude_meters`,
					`ALTER TABLE rasters DROP COLUMN uav`,
				},
			},
		},
	}
}
