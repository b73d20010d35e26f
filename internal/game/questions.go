package game

import (
	"slices"

	"github.com/robotparty/game-server/internal/model"
)

// DistinctQuestions counts unique question ids across collection links.
func DistinctQuestions(links []model.CollectionQuestion) int {
	seen := make(map[int64]struct{}, len(links))
	for _, l := range links {
		seen[l.QuestionID] = struct{}{}
	}
	return len(seen)
}

// PickQuestion draws a collection uniformly among those still holding an
// unused question, then a question uniformly from that collection's unused
// ones. It returns nil when every linked question has been used.
func PickQuestion(rng Rand, links []model.CollectionQuestion, used []int64) *int64 {
	usedSet := make(map[int64]struct{}, len(used))
	for _, id := range used {
		usedSet[id] = struct{}{}
	}

	available := make(map[int64][]int64)
	for _, l := range links {
		if _, ok := usedSet[l.QuestionID]; ok {
			continue
		}
		available[l.CollectionID] = append(available[l.CollectionID], l.QuestionID)
	}
	if len(available) == 0 {
		return nil
	}

	collections := make([]int64, 0, len(available))
	for id := range available {
		collections = append(collections, id)
	}
	slices.Sort(collections)

	pool := available[collections[rng.IntN(len(collections))]]
	picked := pool[rng.IntN(len(pool))]
	return &picked
}
