package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FileMeta описывает файл, приложенный к работе или сдаче.
type FileMeta struct {
	Name   string `json:"name" validate:"required,max=255"`
	Format string `json:"format" validate:"required,fileformat"`
	Size   int64  `json:"size,omitempty" validate:"gte=0"`
}

// FileList хранится в jsonb колонке.
type FileList []FileMeta

// Value сериализует список файлов для записи в базу.
func (f FileList) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan читает список файлов из jsonb.
func (f *FileList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("models: неподдерживаемый тип для FileList: %T", src)
	}
}

// Job описывает работу, размещённую покупателем.
type Job struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	BuyerID            uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	FreelancerID       *uuid.UUID `db:"freelancer_id" json:"freelancer_id,omitempty"`
	Title              string     `db:"title" json:"title"`
	Description        string     `db:"description" json:"description"`
	Category           string     `db:"category" json:"category"`
	SubCategory        string     `db:"sub_category" json:"sub_category"`
	Files              FileList   `db:"files" json:"files"`
	Status             string     `db:"status" json:"status"`
	RequestedBudget    int64      `db:"requested_budget" json:"requested_budget"`
	RequestedDays      int        `db:"requested_days" json:"requested_days"`
	Budget             *int64     `db:"budget" json:"budget,omitempty"`
	Days               *int       `db:"days" json:"days,omitempty"`
	DeliveryFiles      FileList   `db:"delivery_files" json:"delivery_files,omitempty"`
	DeliveryNote       *string    `db:"delivery_note" json:"delivery_note,omitempty"`
	DeliveredAt        *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReviewRating       *int       `db:"review_rating" json:"review_rating,omitempty"`
	ReviewComment      *string    `db:"review_comment" json:"review_comment,omitempty"`
	DisputeDescription *string    `db:"dispute_description" json:"dispute_description,omitempty"`
	IsDeleted          bool       `db:"is_deleted" json:"-"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	BidsCount          *int       `db:"bids_count" json:"bids_count,omitempty"`
}

// IsOwnedBy проверяет, что работа принадлежит покупателю.
func (j *Job) IsOwnedBy(userID uuid.UUID) bool {
	return j.BuyerID == userID
}

// IsAssignedTo проверяет, что работа назначена фрилансеру.
func (j *Job) IsAssignedTo(userID uuid.UUID) bool {
	return j.FreelancerID != nil && *j.FreelancerID == userID
}

// IsTerminal сообщает, что работа завершена или отменена.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// jobTransitions задаёт допустимые переходы статусов вне принятия ставки.
var jobTransitions = map[string][]string{
	JobStatusDraft:      {JobStatusCreated},
	JobStatusCreated:    {JobStatusCancelled},
	JobStatusInProgress: {JobStatusDelivered, JobStatusCompleted, JobStatusCancelled, JobStatusDisputed},
	JobStatusDelivered:  {JobStatusCompleted, JobStatusCancelled, JobStatusDisputed},
	JobStatusDisputed:   {JobStatusCompleted, JobStatusCancelled},
	JobStatusCompleted:  {},
	JobStatusCancelled:  {},
}

// CanTransitionTo проверяет переход по машине состояний работы.
// Переход created -> inprogress выполняется только принятием ставки.
func (j *Job) CanTransitionTo(status string) bool {
	for _, allowed := range jobTransitions[j.Status] {
		if allowed == status {
			return true
		}
	}
	return false
}

// JobCounts счётчики работ фрилансера.
type JobCounts struct {
	Completed  int `db:"completed" json:"completed"`
	InProgress int `db:"inprogress" json:"inprogress"`
	Delivered  int `db:"delivered" json:"delivered"`
}

// FreelancerJobs ответ для списка назначенных работ.
type FreelancerJobs struct {
	Jobs   []Job     `json:"jobs"`
	Counts JobCounts `json:"counts"`
}
