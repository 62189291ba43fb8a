package memes

import (
	"strings"

	"gorm.io/gorm"
)

const (
	memeColumns = "m.id, m.title, m.description, m.filename, m.type, m.upvotes, m.downvotes, m.uploaded_at_s"
	tagColumn   = "GROUP_CONCAT(DISTINCT t.name) AS tag_names"
	joinTagSet  = "LEFT JOIN meme_tags mt ON mt.meme_id = m.id LEFT JOIN tags t ON t.id = mt.tag_id"
	joinTagOnly = "INNER JOIN meme_tags ft ON ft.meme_id = m.id INNER JOIN tags ftg ON ftg.id = ft.tag_id AND LOWER(ftg.name) = LOWER(?)"
	likeEscape  = `\`
)

type predicateKind int

const (
	predicateWhere predicateKind = iota
	predicateJoin
)

// predicate is one typed clause of a listing query with its bound arguments.
type predicate struct {
	kind predicateKind
	sql  string
	args []any
}

// whereTextMatches folds both the columns and the pattern with SQLite's LOWER so
// the two sides always agree on which characters are case-folded.
func whereTextMatches(query string) predicate {
	pattern := "%" + escapeLike(query) + "%"
	return predicate{
		kind: predicateWhere,
		sql: "(LOWER(m.title) LIKE LOWER(?) ESCAPE '" + likeEscape + "'" +
			" OR LOWER(m.description) LIKE LOWER(?) ESCAPE '" + likeEscape + "'" +
			" OR LOWER(m.filename) LIKE LOWER(?) ESCAPE '" + likeEscape + "')",
		args: []any{pattern, pattern, pattern},
	}
}

func whereTypeIs(mediaType MediaType) predicate {
	return predicate{kind: predicateWhere, sql: "m.type = ?", args: []any{string(mediaType)}}
}

func whereIDIs(id uint) predicate {
	return predicate{kind: predicateWhere, sql: "m.id = ?", args: []any{id}}
}

func joinTagged(tag string) predicate {
	return predicate{kind: predicateJoin, sql: joinTagOnly, args: []any{tag}}
}

// listingQuery is a set of predicates ANDed together plus an ordering.
type listingQuery struct {
	predicates []predicate
	order      string
}

func newListingQuery(filter SearchFilter) listingQuery {
	query := listingQuery{order: orderClause(filter.Sort)}
	if text := strings.TrimSpace(filter.Query); text != "" {
		query.predicates = append(query.predicates, whereTextMatches(text))
	}
	if mediaType, ok := ParseMediaType(string(filter.Type)); ok {
		query.predicates = append(query.predicates, whereTypeIs(mediaType))
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		query.predicates = append(query.predicates, joinTagged(tag))
	}
	return query
}

func (q listingQuery) with(extra predicate) listingQuery {
	predicates := make([]predicate, 0, len(q.predicates)+1)
	predicates = append(predicates, q.predicates...)
	predicates = append(predicates, extra)
	return listingQuery{predicates: predicates, order: q.order}
}

// scope applies the filtering joins and where clauses to a query rooted at "memes AS m".
func (q listingQuery) scope(db *gorm.DB) *gorm.DB {
	for _, p := range q.predicates {
		switch p.kind {
		case predicateJoin:
			db = db.Joins(p.sql, p.args...)
		case predicateWhere:
			db = db.Where(p.sql, p.args...)
		}
	}
	return db
}

func (q listingQuery) count(db *gorm.DB) (int64, error) {
	var total int64
	err := q.scope(db.Table("memes AS m")).
		Select("COUNT(DISTINCT m.id)").
		Scan(&total).Error
	return total, err
}

// rows selects memes with their full, comma-joined tag set.
func (q listingQuery) rows(db *gorm.DB) *gorm.DB {
	return q.scope(db.Table("memes AS m").Select(memeColumns + ", " + tagColumn).Joins(joinTagSet)).
		Group("m.id").
		Order(q.order)
}

func orderClause(sort SortOrder) string {
	switch sort {
	case SortOldest:
		return "m.uploaded_at_s ASC, m.id ASC"
	case SortScore:
		return "(m.upvotes - m.downvotes) DESC, m.uploaded_at_s DESC, m.id DESC"
	default:
		return "m.uploaded_at_s DESC, m.id DESC"
	}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return replacer.Replace(value)
}
