// Package query composes parameterized SQL predicates for administrative search.
//
// Only column names and operators come from the fixed vocabulary below; every
// caller-supplied value is bound as a positional parameter.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/and161185/kobo-sync/internal/errs"
)

// MaxLimit bounds a single page of users.
const MaxLimit = 1000

// searchColumns are matched case-insensitively by the free-text search.
var searchColumns = []string{"owner_name", "shop_name", "kobo_id", "business_name"}

// UserFilter is an open set of optional user search criteria. A nil field
// means "no constraint"; a non-nil empty string is a real value.
type UserFilter struct {
	Search   *string
	Country  *string
	Category *string
	Status   *string
	Tier     *string
	Role     *string
	Limit    *int
	Offset   *int
}

// FilterFromValues reads a UserFilter from URL query values, keeping
// missing keys distinct from keys present with an empty value.
func FilterFromValues(v url.Values) (UserFilter, error) {
	var f UserFilter
	str := func(key string) *string {
		if _, ok := v[key]; !ok {
			return nil
		}
		s := v.Get(key)
		return &s
	}
	f.Search = str("search")
	f.Country = str("country")
	f.Category = str("category")
	f.Status = str("status")
	f.Tier = str("tier")
	f.Role = str("role")

	for _, p := range []struct {
		key string
		dst **int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		raw := str(p.key)
		if raw == nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return UserFilter{}, fmt.Errorf("%s %q: %w", p.key, *raw, errs.ErrInvalidFilter)
		}
		*p.dst = &n
	}
	return f, nil
}

// tierFlag maps the logical tier vocabulary onto the is_pro flag.
func tierFlag(tier string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "premium", "pro":
		return true, nil
	case "standard", "free":
		return false, nil
	default:
		return false, fmt.Errorf("tier %q: %w", tier, errs.ErrInvalidFilter)
	}
}

// escapeLike escapes LIKE metacharacters so a search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Predicate is a WHERE conjunction plus its positional arguments.
type Predicate struct {
	Where string // empty when unconstrained, otherwise "WHERE ..."
	Args  []any
}

type builder struct {
	conds []string
	args  []any
}

// bind records v and returns its placeholder.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) exact(column string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		b.conds = append(b.conds, fmt.Sprintf("(%s IS NULL OR %s = '')", column, column))
		return
	}
	b.conds = append(b.conds, column+" = "+b.bind(*v))
}

// UserPredicate composes the filter into a single conjunction.
func UserPredicate(f UserFilter) (Predicate, error) {
	var b builder

	if f.Search != nil {
		if term := strings.TrimSpace(*f.Search); term != "" {
			ph := b.bind("%" + escapeLike(strings.ToLower(term)) + "%")
			ors := make([]string, len(searchColumns))
			for i, c := range searchColumns {
				ors[i] = fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, c, ph)
			}
			b.conds = append(b.conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	b.exact("country", f.Country)
	b.exact("business_type", f.Category)
	b.exact("account_status", f.Status)
	if f.Tier != nil {
		pro, err := tierFlag(*f.Tier)
		if err != nil {
			return Predicate{}, err
		}
		b.conds = append(b.conds, "COALESCE(is_pro, FALSE) = "+b.bind(pro))
	}
	b.exact("role", f.Role)

	p := Predicate{Args: b.args}
	if len(b.conds) > 0 {
		p.Where = "WHERE " + strings.Join(b.conds, " AND ")
	}
	return p, nil
}

// ListUsers returns the full SELECT for the filter: newest-created first,
// with LIMIT/OFFSET only when the caller asked for a page.
func ListUsers(columns string, f UserFilter) (string, []any, error) {
	p, err := UserPredicate(f)
	if err != nil {
		return "", nil, err
	}
	b := builder{args: p.Args}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM users")
	if p.Where != "" {
		sb.WriteString(" ")
		sb.WriteString(p.Where)
	}
	sb.WriteString(" ORDER BY created_at DESC NULLS LAST, id")

	if f.Limit != nil {
		if *f.Limit <= 0 || *f.Limit > MaxLimit {
			return "", nil, fmt.Errorf("limit %d outside 1..%d: %w", *f.Limit, MaxLimit, errs.ErrInvalidFilter)
		}
		sb.WriteString(" LIMIT " + b.bind(int64(*f.Limit)))
	}
	if f.Offset != nil {
		if *f.Offset < 0 {
			return "", nil, fmt.Errorf("offset %d: %w", *f.Offset, errs.ErrInvalidFilter)
		}
		sb.WriteString(" OFFSET " + b.bind(int64(*f.Offset)))
	}
	return sb.String(), b.args, nil
}
