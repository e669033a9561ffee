package services

import (
	"errors"

	"match-wager-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) CreateMatch(m *models.Match) error {
	return s.DB.Create(m).Error
}

func (s *GormStore) SaveMatch(m *models.Match) error {
	return s.DB.Save(m).Error
}

func (s *GormStore) GetMatch(id string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) ListMatchesByState(state models.MatchState) ([]*models.Match, error) {
	var out []*models.Match
	err := s.DB.Where("state = ?", state).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) ListMatchesByUser(userID string) ([]*models.Match, error) {
	var out []*models.Match
	err := s.DB.Where("host_id = ? OR opp_id = ?", userID, userID).
		Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) SaveHold(h *models.EscrowHold) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(h).Error
}

func (s *GormStore) ListHoldsByMatch(matchID string) ([]*models.EscrowHold, error) {
	var out []*models.EscrowHold
	err := s.DB.Where("match_id = ?", matchID).Order("id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) CreateSettlement(st *models.MatchSettlement) error {
	// The unique index on match_id makes the first insert win; any later
	// attempt is a duplicate settlement and must be a no-op.
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}},
		DoNothing: true,
	}).Create(st)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrAlreadySettled
	}
	return nil
}

func (s *GormStore) GetSettlement(matchID string) (*models.MatchSettlement, error) {
	var st models.MatchSettlement
	if err := s.DB.First(&st, "match_id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMatchNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *GormStore) CreateFeeCharge(f *models.FeeCharge) (bool, error) {
	res := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "match_id"}, {Name: "user_id"}, {Name: "tag"},
		},
		DoNothing: true,
	}).Create(f)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) HasFeeCharge(matchID, userID, tag string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.FeeCharge{}).
		Where("match_id = ? AND user_id = ? AND tag = ?", matchID, userID, tag).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) SaveChecklistEntry(e *models.ChecklistEntry) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(e).Error
}

func (s *GormStore) GetChecklist(matchID string) ([]*models.ChecklistEntry, error) {
	var out []*models.ChecklistEntry
	err := s.DB.Where("match_id = ?", matchID).Order("key ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) CreateDispute(d *models.Dispute) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Dispute{}).
			Where("match_id = ? AND status = ?", d.MatchID, models.DisputeStatusOpen).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.ErrDisputeAlreadyOpen
		}
		return tx.Create(d).Error
	})
}

func (s *GormStore) GetDispute(id string) (*models.Dispute, error) {
	var d models.Dispute
	if err := s.DB.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *GormStore) GetOpenDispute(matchID string) (*models.Dispute, error) {
	var d models.Dispute
	err := s.DB.First(&d, "match_id = ? AND status = ?", matchID, models.DisputeStatusOpen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrDisputeNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *GormStore) SaveDispute(d *models.Dispute) error {
	return s.DB.Save(d).Error
}

func (s *GormStore) CreateSide(sc *models.SideChallenge) error {
	return s.DB.Create(sc).Error
}

func (s *GormStore) GetSide(id string) (*models.SideChallenge, error) {
	var sc models.SideChallenge
	if err := s.DB.First(&sc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSideNotFound
		}
		return nil, err
	}
	return &sc, nil
}

func (s *GormStore) ListSidesByMatch(matchID string) ([]*models.SideChallenge, error) {
	var out []*models.SideChallenge
	err := s.DB.Where("match_id = ?", matchID).Order("id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) SaveSide(sc *models.SideChallenge) error {
	return s.DB.Save(sc).Error
}

func (s *GormStore) SaveStreamLink(l *models.StreamLink) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "channel_id", "updated_at"}),
	}).Create(l).Error
}

func (s *GormStore) ListStreamLinks(matchID string) ([]*models.StreamLink, error) {
	var out []*models.StreamLink
	err := s.DB.Where("match_id = ?", matchID).Order("user_id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) AppendMatchEvent(e *models.MatchEvent) error {
	return s.DB.Create(e).Error
}

func (s *GormStore) ListMatchEvents(matchID string) ([]*models.MatchEvent, error) {
	var out []*models.MatchEvent
	err := s.DB.Where("match_id = ?", matchID).Order("id ASC").Find(&out).Error
	return out, err
}
