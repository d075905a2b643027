package waitlist

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	// ErrNotConfigured - 저장소 미설정
	ErrNotConfigured = errors.New("waitlist storage is not configured")
)

// RowInserter - 행 추가 (database.Client)
type RowInserter interface {
	InsertRow(table string, row interface{}) ([]byte, error)
}

// ValidationError - 입력 오류 (사용자에게 그대로 표시)
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Entry - 대기자 명단 행
type Entry struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email,excludes=..,endsnotwith=."`
}

type Service struct {
	inserter RowInserter
	table    string
}

// NewService - 대기자 명단 서비스 생성 (inserter 가 nil 이면 Join 은 ErrNotConfigured)
func NewService(inserter RowInserter, table string) *Service {
	return &Service{inserter: inserter, table: table}
}

// Join - 명단에 추가. 이미 등록된 이메일이면 성공으로 보고 alreadyJoined=true
func (s *Service) Join(name, email string) (bool, error) {
	entry := Entry{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}

	if err := validate.Struct(entry); err != nil {
		return false, validationMessage(err)
	}
	if s == nil || s.inserter == nil {
		return false, ErrNotConfigured
	}

	if _, err := s.inserter.InsertRow(s.table, []Entry{entry}); err != nil {
		if isDuplicate(err) {
			log.Printf("ℹ️  [Waitlist] %s already joined", entry.Email)
			return true, nil
		}
		return false, fmt.Errorf("waitlist insert failed: %w", err)
	}

	log.Printf("✅ [Waitlist] %s joined", entry.Email)
	return false, nil
}

// validationMessage - 첫 번째 필드 오류를 사용자 메시지로 변환
func validationMessage(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("waitlist validation failed: %w", err)
	}

	first := fieldErrs[0]
	switch {
	case first.Field() == "Name":
		return &ValidationError{Message: "Please enter your name"}
	case first.Tag() == "required":
		return &ValidationError{Message: "Please enter your email"}
	default:
		return &ValidationError{Message: "Please enter a valid email address"}
	}
}

func isDuplicate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
