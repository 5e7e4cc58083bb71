// Пакет model — доменные модели слоя хранения SnapCal.
// Meal — запись о приёме пищи (таблица meals / локальный массив meals).
package model

import (
	"encoding/json"
	"time"
)

// Форматы денормализованных полей даты и времени.
const (
	// DateLayout — календарная дата (YYYY-MM-DD).
	DateLayout = "2006-01-02"
	// TimeLayout — время суток (HH:MM).
	TimeLayout = "15:04"
)

// SubItem — компонент блюда, распознанный AI или введённый вручную.
type SubItem struct {
	// Name — название компонента
	Name string `json:"name"`
	// Grams — масса в граммах
	Grams float64 `json:"grams"`
	// Calories — энергетическая ценность компонента (ккал)
	Calories float64 `json:"calories"`
}

// AIEstimate — исходная оценка AI, сохраняется для аудита и отмены ручных правок.
type AIEstimate struct {
	FoodName   string    `json:"foodName"`
	Calories   float64   `json:"calories"`
	Protein    float64   `json:"protein"`
	Carbs      float64   `json:"carbs"`
	Fat        float64   `json:"fat"`
	Confidence float64   `json:"confidence"`
	SubItems   []SubItem `json:"subItems,omitempty"`
}

// ParseAIEstimate разбирает сохранённый снимок оценки AI.
// Пустой или повреждённый JSON не является ошибкой: возвращается nil,
// чтобы некорректный ответ upstream не ломал чтение записи.
func ParseAIEstimate(raw []byte) *AIEstimate {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	est := &AIEstimate{}
	if err := json.Unmarshal(raw, est); err != nil {
		return nil
	}
	if est.Confidence < 0 || est.Confidence > 1 {
		est.Confidence = 0
	}
	return est
}

// Meal — одна запись о приёме пищи.
// Date и Time вычисляются из Timestamp при первом сохранении
// в часовом поясе пишущей стороны и далее не пересчитываются.
type Meal struct {
	// ID — непрозрачный идентификатор записи
	ID string `json:"id"`
	// UserID — владелец записи
	UserID string `json:"userId"`
	// Timestamp — момент приёма пищи (ISO instant)
	Timestamp time.Time `json:"timestamp"`
	// Date — календарная дата (YYYY-MM-DD), денормализована
	Date string `json:"date"`
	// Time — время суток (HH:MM), денормализовано
	Time string `json:"time"`
	// FoodName — короткая подпись
	FoodName string `json:"foodName"`
	// Calories, Protein, Carbs, Fat — пищевая ценность (неотрицательные)
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	// Confidence — уверенность распознавания в диапазоне [0,1]
	Confidence float64 `json:"confidence"`
	// Image — закодированное изображение ограниченного размера (опционально)
	Image string `json:"image,omitempty"`
	// ManuallyEdited — запись исправлена пользователем
	ManuallyEdited bool `json:"manuallyEdited"`
	// SubItems — компоненты блюда (опционально)
	SubItems []SubItem `json:"subItems,omitempty"`
	// AIEstimate — снимок исходной оценки AI (опционально)
	AIEstimate *AIEstimate `json:"aiEstimate,omitempty"`
}

// Lite возвращает копию записи без изображения и снимка AI.
// Используется списками, где важен размер ответа.
func (m *Meal) Lite() *Meal {
	c := *m
	c.Image = ""
	c.AIEstimate = nil
	return &c
}

// Clone возвращает глубокую копию записи.
func (m *Meal) Clone() *Meal {
	c := *m
	if m.SubItems != nil {
		c.SubItems = append([]SubItem(nil), m.SubItems...)
	}
	if m.AIEstimate != nil {
		est := *m.AIEstimate
		if m.AIEstimate.SubItems != nil {
			est.SubItems = append([]SubItem(nil), m.AIEstimate.SubItems...)
		}
		c.AIEstimate = &est
	}
	return &c
}

// StampDate заполняет Date и Time из Timestamp в указанном часовом поясе.
// Уже заполненная дата не перезаписывается.
func (m *Meal) StampDate(loc *time.Location) {
	if m.Date != "" {
		return
	}
	local := m.Timestamp.In(loc)
	m.Date = local.Format(DateLayout)
	m.Time = local.Format(TimeLayout)
}
