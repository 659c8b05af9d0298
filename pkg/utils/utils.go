package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/google/uuid"
)

// TokenLength длина API-токена эмиттера
const TokenLength = 64

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func NewUUID() uuid.UUID {
	return uuid.New()
}

func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GenerateToken возвращает криптографически случайную алфавитно-цифровую строку
func GenerateToken(length int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		buf[i] = alphanumeric[n.Int64()]
	}
	return string(buf), nil
}

// Sample детерминированно прореживает data до n элементов с сохранением порядка.
// На каждый элемент к аккумулятору прибавляется n/len(data); элемент попадает
// в выборку, когда аккумулятор достигает единицы. Счёт ведётся в целых числах
// (аккумулятор умножен на len(data)), поэтому длина результата ровно n.
func Sample[T any](n *int, data []T) []T {
	if n == nil || *n >= len(data) {
		return data
	}
	if len(data) == 0 || *n <= 0 {
		return []T{}
	}

	total := len(data)
	sampled := make([]T, 0, *n)
	acc := 0
	for _, d := range data {
		acc += *n
		if acc >= total {
			sampled = append(sampled, d)
			acc -= total
		}
	}
	return sampled
}

// GenerateRandomPayload генерит рандомные значения вокруг base с разбросом spread
func GenerateRandomPayload(base, spread float64) float64 {
	return base + (mrand.Float64()*2-1)*spread
}

type TimeGenerator struct {
	minTime time.Time
	maxTime time.Time
}

func NewTimeGenerator(min, max time.Time) *TimeGenerator {
	return &TimeGenerator{
		minTime: min,
		maxTime: max,
	}
}

func (tg *TimeGenerator) Generate() time.Time {
	delta := tg.maxTime.Sub(tg.minTime)
	if delta <= 0 {
		return tg.minTime
	}
	randomDuration := time.Duration(mrand.Int63n(int64(delta)))
	return tg.minTime.Add(randomDuration)
}

// PastDaysGenerator генератор за последние days дней
func PastDaysGenerator(days int) *TimeGenerator {
	now := time.Now().UTC()
	return NewTimeGenerator(now.AddDate(0, 0, -days), now)
}
