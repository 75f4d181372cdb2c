// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlcpo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/canonical/sqlcpo/stream"
)

// Stream runs c on q in a producer goroutine and returns a channel carrying
// one T per row. T must be a struct or a map with string keys. At most
// capacity rows are buffered; the query is paused while the channel is
// full.
//
// The caller must take from the channel until it returns an error, or call
// Cancel on it.
func Stream[T any](ctx context.Context, q Querier, c *Compiled, capacity int, opts ...stream.Options) (*stream.Channel[T], error) {
	var zero T
	switch k := reflect.TypeOf(&zero).Elem().Kind(); k {
	case reflect.Struct, reflect.Map:
	default:
		return nil, fmt.Errorf("cannot stream rows into %s, need struct or map", k)
	}
	var o stream.Options
	if len(opts) > 0 {
		o = opts[0]
	}
	ch, err := stream.New[T](ctx, capacity, o)
	if err != nil {
		return nil, err
	}
	err = ch.Go(func(ctx context.Context, put func(T) error) error {
		iter := q.Query(ctx, c).Iter()
		for iter.Next() {
			var row T
			if err := iter.Get(&row); err != nil {
				iter.Close()
				return err
			}
			if err := put(row); err != nil {
				iter.Close()
				return err
			}
		}
		return iter.Close()
	})
	if err != nil {
		return nil, err
	}
	ch.Seal()
	return ch, nil
}
