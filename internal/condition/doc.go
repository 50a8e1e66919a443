// Package condition evaluates automation guard expressions.
//
// A guard is a small boolean expression compiled once at registration and
// evaluated against the layout state every time its trigger matches:
//
//	is_occupied('bk1') and not is_red('sg1')
//	entity_kind == 'fb' and entity.state
//	count_moving() >= 2 or time_between(22, 6)
//	any_of([is_on('co_lights'), is_nighttime()])
//
// The language has number, string, boolean, none and list literals; the
// operators or/||, and/&&, not/!, == != < <= > >= in, + - * / and unary
// minus; member access (entity.V) and calls to a fixed helper library.
// Comparisons do not chain.
//
// Evaluation never panics and never fails the caller. Any problem (an
// unknown helper, a wrong argument count, a type mismatch) is reported through
// the Evaluator's logger and the guard is treated as false. Helpers never fail
// on a missing entity: every predicate answers false,
// counts answer zero and attr answers none.
package condition
