// Package pool holds the read-only set of callable numbers.
package pool

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/wfunc/bingoserver/models"
)

var (
	ErrEmptyPool       = errors.New("pool is empty")
	ErrDuplicateValue  = errors.New("duplicate value in pool")
	ErrMissingCategory = errors.New("pool entry without category")
	ErrInvalidValue    = errors.New("pool value must be positive")
	ErrSizeMismatch    = errors.New("pool size does not match configuration")
)

// Pool is immutable once built.
type Pool struct {
	numbers []models.CalledNumber
	index   map[int]int
}

func New(numbers []models.CalledNumber) (*Pool, error) {
	if len(numbers) == 0 {
		return nil, ErrEmptyPool
	}
	p := &Pool{
		numbers: make([]models.CalledNumber, len(numbers)),
		index:   make(map[int]int, len(numbers)),
	}
	for i, n := range numbers {
		// 0 是服务端抽号的保留值
		if n.Value <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidValue, n.Value)
		}
		if n.Category == "" {
			return nil, fmt.Errorf("%w: value %d", ErrMissingCategory, n.Value)
		}
		if _, dup := p.index[n.Value]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateValue, n.Value)
		}
		p.index[n.Value] = i
		p.numbers[i] = n
	}
	return p, nil
}

// Standard 标准 75 球：B 1-15, I 16-30, N 31-45, G 46-60, O 61-75
func Standard() *Pool {
	letters := []string{"B", "I", "N", "G", "O"}
	numbers := make([]models.CalledNumber, 0, 75)
	for i, l := range letters {
		for v := i*15 + 1; v <= (i+1)*15; v++ {
			numbers = append(numbers, models.CalledNumber{Value: v, Category: l})
		}
	}
	p, _ := New(numbers)
	return p
}

// Size returns the number of callable entries.
func (p *Pool) Size() int {
	return len(p.numbers)
}

// Lookup returns the pool entry for value.
func (p *Pool) Lookup(value int) (models.CalledNumber, bool) {
	i, ok := p.index[value]
	if !ok {
		return models.CalledNumber{}, false
	}
	return p.numbers[i], true
}

// Numbers returns a copy in pool order.
func (p *Pool) Numbers() []models.CalledNumber {
	out := make([]models.CalledNumber, len(p.numbers))
	copy(out, p.numbers)
	return out
}

// Remaining lists the entries not present in called, in pool order.
func (p *Pool) Remaining(called []models.CalledNumber) []models.CalledNumber {
	seen := make(map[int]struct{}, len(called))
	for _, c := range called {
		seen[c.Value] = struct{}{}
	}
	out := make([]models.CalledNumber, 0, max(len(p.numbers)-len(seen), 0))
	for _, n := range p.numbers {
		if _, ok := seen[n.Value]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Draw picks a random entry that has not been called yet.
func (p *Pool) Draw(called []models.CalledNumber, rnd *rand.Rand) (models.CalledNumber, bool) {
	left := p.Remaining(called)
	if len(left) == 0 {
		return models.CalledNumber{}, false
	}
	if rnd == nil {
		return left[rand.Intn(len(left))], true
	}
	return left[rnd.Intn(len(left))], true
}

// CheckSize 校验号码池大小与配置一致
func (p *Pool) CheckSize(want int) error {
	if want > 0 && p.Size() != want {
		return fmt.Errorf("%w: want %d, got %d", ErrSizeMismatch, want, p.Size())
	}
	return nil
}
