package pipeline

// Concept 是领域概念及其同义词表。
type Concept struct {
	Name     string
	Synonyms []string
}

// DefaultConcepts 返回内置的家暴/强制控制领域概念表。
// 顺序固定，命中的概念按此顺序输出。
func DefaultConcepts() []Concept {
	return []Concept{
		{Name: "coercion", Synonyms: []string{"threats", "pressure", "manipulation", "intimidation", "control"}},
		{Name: "financial control", Synonyms: []string{"controls", "bank account", "allowance", "withholding money", "spending", "debt", "credit card", "financial abuse"}},
		{Name: "monitoring", Synonyms: []string{"checks", "tracking", "surveillance", "spying", "monitors", "location", "reads my messages", "gps"}},
		{Name: "isolation", Synonyms: []string{"isolates", "cut off", "not allowed to see", "friends", "family", "alone"}},
		{Name: "physical violence", Synonyms: []string{"hit", "pushed", "slapped", "choked", "strangled", "assault", "injury", "bruise"}},
		{Name: "emotional abuse", Synonyms: []string{"belittles", "humiliates", "insults", "gaslighting", "worthless", "yelling"}},
		{Name: "stalking", Synonyms: []string{"follows", "followed", "turns up", "waiting outside", "watching"}},
		{Name: "harassment", Synonyms: []string{"calls", "texts", "messages", "unwanted contact", "abusive messages"}},
		{Name: "sexual coercion", Synonyms: []string{"forced", "consent", "unwanted sex", "sexual pressure"}},
		{Name: "child involvement", Synonyms: []string{"children", "custody", "kids", "parenting", "school pickup"}},
	}
}
