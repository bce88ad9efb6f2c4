package model

// Category is the single handling category assigned to a message.
type Category string

const (
	CategoryUrgent        Category = "urgent"
	CategoryHasAttachment Category = "has_attachment"
	CategoryRegular       Category = "regular"
)

// Categories returns all categories in precedence order.
func Categories() []Category {
	return []Category{CategoryUrgent, CategoryHasAttachment, CategoryRegular}
}

func (c Category) String() string {
	return string(c)
}

// CategoryCounts holds one counter per category.
type CategoryCounts struct {
	Urgent        int `json:"urgent"`
	HasAttachment int `json:"has_attachment"`
	Regular       int `json:"regular"`
}

// Get returns the counter for c.
func (c CategoryCounts) Get(cat Category) int {
	switch cat {
	case CategoryUrgent:
		return c.Urgent
	case CategoryHasAttachment:
		return c.HasAttachment
	case CategoryRegular:
		return c.Regular
	}
	return 0
}

// Add increments the counter for cat by n.
func (c *CategoryCounts) Add(cat Category, n int) {
	switch cat {
	case CategoryUrgent:
		c.Urgent += n
	case CategoryHasAttachment:
		c.HasAttachment += n
	case CategoryRegular:
		c.Regular += n
	}
}

// Total returns the sum of all counters.
func (c CategoryCounts) Total() int {
	return c.Urgent + c.HasAttachment + c.Regular
}
