package localstore

import (
	"context"
	"fmt"
	"time"
)

// degradedRatio — доля занятой квоты, начиная с которой хранилище
// считается почти заполненным.
const degradedRatio = 0.9

// CheckReady проверяет доступность хранилища и запас ёмкости.
// Возвращает статус ("ok", "degraded", "fail") и сообщение.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	used, err := s.Usage(ctx)
	if err != nil {
		return "fail", err.Error()
	}
	msg := fmt.Sprintf("занято %d из %d байт", used, s.quota)
	if float64(used) >= float64(s.quota)*degradedRatio {
		return "degraded", msg
	}
	return "ok", msg
}
