// Package loyalty реализует правило обновления баланса участника программы
// лояльности по завершённой продаже.
package loyalty

import (
	"time"

	"github.com/mmeshcher/pos-system/internal/model"
)

// ApplySale применяет завершённую продажу к участнику и возвращает его
// обновлённое состояние. Списание повторно ограничивается доступным
// балансом, поэтому баллы никогда не уходят в минус. Накопленная сумма
// покупок только растёт.
//
// Операция не идемпотентна: повторное применение одной и той же продажи
// удвоит изменения. Вызывающая сторона обязана гарантировать ровно одно
// применение на продажу — фиксация продажи в хранилище закрыта
// уникальным идентификатором чека.
func ApplySale(m model.Member, pointsEarned, pointsUsed int, amountSpent float64, now time.Time) model.Member {
	if pointsEarned < 0 {
		pointsEarned = 0
	}
	if pointsUsed < 0 {
		pointsUsed = 0
	}
	if pointsUsed > m.Points {
		pointsUsed = m.Points
	}

	m.Points = m.Points - pointsUsed + pointsEarned
	if amountSpent > 0 {
		m.TotalSpent += amountSpent
	}
	m.LastVisit = now

	return m
}
