package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DetailKind is the variant tag of a submission's type-specific payload. It
// equals the slug of the submission type.
type DetailKind string

const (
	DetailKindPatent           DetailKind = "paten"
	DetailKindBrand            DetailKind = "brand"
	DetailKindHaki             DetailKind = "haki"
	DetailKindIndustrialDesign DetailKind = "desain_industri"
)

type Detail interface {
	Kind() DetailKind
	Validate() error
}

var ErrUnknownDetailKind = errors.New("unknown submission detail kind")

var detailRegistry = map[DetailKind]func() Detail{
	DetailKindPatent:           func() Detail { return &PatentDetail{} },
	DetailKindBrand:            func() Detail { return &BrandDetail{} },
	DetailKindHaki:             func() Detail { return &HakiDetail{} },
	DetailKindIndustrialDesign: func() Detail { return &IndustrialDesignDetail{} },
}

type PatentDetail struct {
	PatentType     string   `json:"patent_type"`
	TechnicalField string   `json:"technical_field"`
	Abstract       string   `json:"abstract"`
	Inventors      []string `json:"inventors"`
}

func (PatentDetail) Kind() DetailKind { return DetailKindPatent }

func (d PatentDetail) Validate() error {
	if strings.TrimSpace(d.PatentType) == "" {
		return errors.New("patent_type is required")
	}
	if len(d.Inventors) == 0 {
		return errors.New("at least one inventor is required")
	}
	return nil
}

type BrandDetail struct {
	BrandName   string `json:"brand_name"`
	BrandType   string `json:"brand_type"`
	Classes     []int  `json:"classes"`
	Description string `json:"description"`
}

func (BrandDetail) Kind() DetailKind { return DetailKindBrand }

func (d BrandDetail) Validate() error {
	if strings.TrimSpace(d.BrandName) == "" {
		return errors.New("brand_name is required")
	}
	for _, class := range d.Classes {
		if class < 1 || class > 45 {
			return fmt.Errorf("brand class %d out of range", class)
		}
	}
	return nil
}

type HakiDetail struct {
	WorkType           string     `json:"work_type"`
	WorkSubtype        string     `json:"work_subtype"`
	FirstPublishedAt   *time.Time `json:"first_published_at,omitempty"`
	FirstPublishedCity string     `json:"first_published_city"`
	Creators           []string   `json:"creators"`
}

func (HakiDetail) Kind() DetailKind { return DetailKindHaki }

func (d HakiDetail) Validate() error {
	if strings.TrimSpace(d.WorkType) == "" {
		return errors.New("work_type is required")
	}
	if len(d.Creators) == 0 {
		return errors.New("at least one creator is required")
	}
	return nil
}

type IndustrialDesignDetail struct {
	DesignTitle string   `json:"design_title"`
	DesignType  string   `json:"design_type"`
	Description string   `json:"description"`
	Designers   []string `json:"designers"`
}

func (IndustrialDesignDetail) Kind() DetailKind { return DetailKindIndustrialDesign }

func (d IndustrialDesignDetail) Validate() error {
	if strings.TrimSpace(d.DesignTitle) == "" {
		return errors.New("design_title is required")
	}
	if len(d.Designers) == 0 {
		return errors.New("at least one designer is required")
	}
	return nil
}

// SubmissionDetail is the persisted form of a Detail.
type SubmissionDetail struct {
	SubmissionID uuid.UUID      `gorm:"type:uuid;primaryKey" json:"submission_id"`
	Kind         DetailKind     `gorm:"type:varchar(64);not null" json:"kind"`
	Payload      datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubmissionDetail) TableName() string {
	return "submission_details"
}

func EncodeDetail(submissionID uuid.UUID, d Detail) (*SubmissionDetail, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s detail: %w", d.Kind(), err)
	}
	return &SubmissionDetail{
		SubmissionID: submissionID,
		Kind:         d.Kind(),
		Payload:      datatypes.JSON(payload),
	}, nil
}

// DecodeDetail parses a raw payload into the variant registered for kind.
func DecodeDetail(kind DetailKind, raw []byte) (Detail, error) {
	factory, ok := detailRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDetailKind, kind)
	}
	d := factory()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("decode %s detail: %w", kind, err)
		}
	}
	return d, nil
}

func (d SubmissionDetail) Decode() (Detail, error) {
	return DecodeDetail(d.Kind, d.Payload)
}
