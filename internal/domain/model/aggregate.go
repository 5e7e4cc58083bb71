package model

import "time"

// DailyAggregate — суммарная пищевая ценность пользователя за календарную дату.
// Существует либо как живой расчёт по текущим Meal, либо как сохранённый
// rollup после архивации даты — но не одновременно.
type DailyAggregate struct {
	// UserID — владелец
	UserID string `json:"userId"`
	// Date — календарная дата (уникальна в пределах пользователя)
	Date string `json:"date"`
	// TotalCalories, TotalProtein, TotalCarbs, TotalFat — суммы за дату
	TotalCalories float64 `json:"totalCalories"`
	TotalProtein  float64 `json:"totalProtein"`
	TotalCarbs    float64 `json:"totalCarbs"`
	TotalFat      float64 `json:"totalFat"`
	// MealCount — количество записей, вошедших в сумму
	MealCount int `json:"mealCount"`
	// Archived — true для сохранённого rollup, false для живого расчёта
	Archived bool `json:"archived"`
	// UpdatedAt — время последнего сохранения rollup (для живого расчёта — нулевое)
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Add добавляет запись в сумму.
func (a *DailyAggregate) Add(m *Meal) {
	a.TotalCalories += m.Calories
	a.TotalProtein += m.Protein
	a.TotalCarbs += m.Carbs
	a.TotalFat += m.Fat
	a.MealCount++
}

// SumByDate группирует записи по календарной дате и считает суммы.
func SumByDate(userID string, meals []*Meal) map[string]*DailyAggregate {
	result := make(map[string]*DailyAggregate)
	for _, m := range meals {
		agg, ok := result[m.Date]
		if !ok {
			agg = &DailyAggregate{UserID: userID, Date: m.Date}
			result[m.Date] = agg
		}
		agg.Add(m)
	}
	return result
}
