package availability

// similarity scores how close two match keys are, from 0 to 1, as one minus
// the edit distance over the longer key. find uses it to pick the best of
// several accepted hits, e.g. "Hey Jude" over "Hey Jude (Naked)"; it never
// decides acceptance.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(ra, rb))/float64(longest)
}

// editDistance is the Levenshtein distance over runes, kept to two rows.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	next := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i, ca := range a {
		next[0] = i + 1
		for j, cb := range b {
			sub := row[j]
			if ca != cb {
				sub++
			}
			next[j+1] = min(row[j+1]+1, next[j]+1, sub)
		}
		row, next = next, row
	}
	return row[len(b)]
}
