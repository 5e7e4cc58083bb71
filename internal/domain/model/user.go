package model

import "time"

// ActivityLevel — уровень физической активности.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// Goal — цель пользователя по массе тела.
type Goal string

const (
	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"
)

// Gender — пол (для расчёта базового обмена).
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Settings — пользовательские настройки (одна строка на пользователя, только upsert).
type Settings struct {
	UserID string `json:"userId"`
	// DailyCalorieGoal — дневная цель по калориям
	DailyCalorieGoal float64   `json:"dailyCalorieGoal"`
	UpdatedAt        time.Time `json:"updatedAt,omitzero"`
}

// Profile — профиль пользователя (одна строка на пользователя, только upsert).
type Profile struct {
	UserID        string        `json:"userId"`
	Name          string        `json:"name"`
	Age           int           `json:"age"`
	Gender        Gender        `json:"gender"`
	HeightCm      float64       `json:"heightCm"`
	WeightKg      float64       `json:"weightKg"`
	ActivityLevel ActivityLevel `json:"activityLevel"`
	Goal          Goal          `json:"goal"`
	UpdatedAt     time.Time     `json:"updatedAt,omitzero"`
}

// ValidActivityLevel проверяет допустимость уровня активности.
func ValidActivityLevel(l ActivityLevel) bool {
	switch l {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
		return true
	}
	return false
}

// ValidGoal проверяет допустимость цели.
func ValidGoal(g Goal) bool {
	switch g {
	case GoalLose, GoalMaintain, GoalGain:
		return true
	}
	return false
}
