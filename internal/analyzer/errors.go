package analyzer

import "fmt"

// ConfigError: 실행 파라미터가 모순되거나 잘못된 경우. 런이 시작되지 않는다
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// RepoError: 저장소 연결/쿼리 실패. 현재 런 전체를 중단시킨다
type RepoError struct {
	Op  string
	Err error
}

func (e *RepoError) Error() string { return fmt.Sprintf("repository %s: %v", e.Op, e.Err) }
func (e *RepoError) Unwrap() error { return e.Err }

// EntityError: 단일 엔티티/윈도우 처리 실패. 로그 후 해당 엔티티만 건너뛴다
type EntityError struct {
	EntityID int64
	Stage    string
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %d %s: %v", e.EntityID, e.Stage, e.Err)
}
func (e *EntityError) Unwrap() error { return e.Err }
