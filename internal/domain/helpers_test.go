package domain_test

import "github.com/Yanchun-Li/ai-divination/internal/domain"

// seq returns a Source that replays vals in order and then repeats the last one.
func seq(vals ...float64) domain.Source {
	i := 0
	return domain.SourceFunc(func() float64 {
		v := vals[min(i, len(vals)-1)]
		i++
		return v
	})
}

// tossWithSum builds a valid toss for sum 6..9.
func tossWithSum(sum int) domain.CoinToss {
	var coins [3]int
	heads := sum - 6
	for i := range coins {
		if i < heads {
			coins[i] = domain.CoinHeads
		} else {
			coins[i] = domain.CoinTails
		}
	}
	t, err := domain.ClassifyToss(coins)
	if err != nil {
		panic(err)
	}
	return t
}

func tossesWithSums(sums ...int) []domain.CoinToss {
	out := make([]domain.CoinToss, len(sums))
	for i, s := range sums {
		out[i] = tossWithSum(s)
	}
	return out
}
