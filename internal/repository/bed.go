package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// BedRepository 床位查询（用于推导楼层的预期住户数）
type BedRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBedRepository creates a new bed repository
func NewBedRepository(db *sql.DB, logger *zap.Logger) *BedRepository {
	return &BedRepository{
		db:     db,
		logger: logger,
	}
}

// OccupiedBed 已分配住户的床位
type OccupiedBed struct {
	BedID      string
	RoomID     string
	ResidentID string
}

// ListOccupiedBeds 查询单元下已分配住户的床位，按房间和床位名称排序
func (r *BedRepository) ListOccupiedBeds(tenantID, unitID string) ([]OccupiedBed, error) {
	query := `
		SELECT
			b.bed_id,
			b.room_id,
			res.resident_id
		FROM beds b
		INNER JOIN rooms r ON b.room_id = r.room_id
		INNER JOIN residents res ON res.bed_id = b.bed_id AND res.tenant_id = $1
		WHERE b.tenant_id = $1
		  AND r.unit_id = $2
		ORDER BY r.room_name, b.bed_name
	`

	rows, err := r.db.Query(query, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query occupied beds: %w", err)
	}
	defer rows.Close()

	var beds []OccupiedBed
	for rows.Next() {
		var bed OccupiedBed
		if err := rows.Scan(&bed.BedID, &bed.RoomID, &bed.ResidentID); err != nil {
			return nil, fmt.Errorf("failed to scan bed: %w", err)
		}
		beds = append(beds, bed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beds: %w", err)
	}

	r.logger.Debug("Loaded occupied beds",
		zap.String("tenant_id", tenantID),
		zap.String("unit_id", unitID),
		zap.Int("bed_count", len(beds)),
	)
	return beds, nil
}
