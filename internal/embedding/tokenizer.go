package embedding

// Tokenizer produces padded token ids and the matching attention mask.
type Tokenizer interface {
	Tokenize(seq string, maxTokens int) (inputIDs, attentionMask []int64)
}

// Special token ids of the nucleotide-transformer vocabulary.
const (
	tokenUnk  = 0
	tokenPad  = 1
	tokenMask = 2
	tokenCLS  = 3
	tokenEOS  = 4
	tokenBOS  = 5
)

const kmerAlphabet = "ATCG"

// KmerTokenizer splits a sequence into non-overlapping 6-mers, falling back to
// single-nucleotide tokens for the tail and for chunks containing other symbols.
// Ids follow the nucleotide-transformer vocabulary: six specials, the 4096 6-mers
// over ATCG in lexicographic order, then A, T, C, G, N.
type KmerTokenizer struct {
	K int
}

// NewKmerTokenizer returns the 6-mer tokenizer.
func NewKmerTokenizer() *KmerTokenizer {
	return &KmerTokenizer{K: 6}
}

func alphabetIndex(c byte) int {
	for i := 0; i < len(kmerAlphabet); i++ {
		if kmerAlphabet[i] == c {
			return i
		}
	}
	return -1
}

func (t *KmerTokenizer) kmerID(chunk string) (int64, bool) {
	id := 0
	for i := 0; i < len(chunk); i++ {
		a := alphabetIndex(chunk[i])
		if a < 0 {
			return 0, false
		}
		id = id*len(kmerAlphabet) + a
	}
	return int64(tokenBOS + 1 + id), true
}

func (t *KmerTokenizer) singleID(c byte) int64 {
	base := int64(tokenBOS + 1 + 1<<(2*t.K))
	if a := alphabetIndex(c); a >= 0 {
		return base + int64(a)
	}
	if c == 'N' {
		return base + 4
	}
	return tokenUnk
}

// Tokenize emits [CLS] followed by sequence tokens, truncated and padded to maxTokens.
func (t *KmerTokenizer) Tokenize(seq string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = tokenPad
	}

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1
	pos := 1
	emit := func(id int64) bool {
		if pos >= maxTokens {
			return false
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
		return true
	}

	seq = NormalizeSequence(seq)
	for i := 0; i < len(seq); {
		if i+t.K <= len(seq) {
			if id, ok := t.kmerID(seq[i : i+t.K]); ok {
				if !emit(id) {
					break
				}
				i += t.K
				continue
			}
		}
		if !emit(t.singleID(seq[i])) {
			break
		}
		i++
	}
	return inputIDs, attentionMask
}
