package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/posync/api/responses"
	"github.com/angelmondragon/posync/api/validators"
	"github.com/angelmondragon/posync/internal/refcache"
	"github.com/angelmondragon/posync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/posync/pkg/errors"
	"github.com/angelmondragon/posync/pkg/logger"
	"github.com/angelmondragon/posync/pkg/pagination"
	"github.com/angelmondragon/posync/pkg/types"
)

type CacheRefresher interface {
	FetchAndCacheProducts(ctx context.Context) (int, error)
	FetchAndCacheCustomers(ctx context.Context) (int, error)
	InitialSync(ctx context.Context) (refcache.InitialCounts, error)
	RefreshTimes(ctx context.Context) (products, customers *time.Time, err error)
}

type CacheReader interface {
	ListProducts(ctx context.Context, q refcache.ProductQuery) ([]models.CachedProduct, string, error)
	ListCustomers(ctx context.Context, q refcache.CustomerQuery) ([]models.CachedCustomer, string, error)
}

type cacheRefreshResponse struct {
	Products             *int       `json:"products,omitempty"`
	Customers            *int       `json:"customers,omitempty"`
	ProductsRefreshedAt  *time.Time `json:"productsRefreshedAt"`
	CustomersRefreshedAt *time.Time `json:"customersRefreshedAt"`
}

// CacheRefresh replaces the reference caches from the backend. ?entity=
// products or customers limits the refresh to one of them.
func CacheRefresh(svc CacheRefresher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cache loader unavailable"))
			return
		}

		var out cacheRefreshResponse
		switch entity := validators.ParseQueryString(r, "entity"); entity {
		case "", "all":
			counts, err := svc.InitialSync(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out.Products, out.Customers = &counts.Products, &counts.Customers
		case "products":
			n, err := svc.FetchAndCacheProducts(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out.Products = &n
		case "customers":
			n, err := svc.FetchAndCacheCustomers(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out.Customers = &n
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown cache entity").
				WithDetails(map[string]string{"entity": "must be products, customers or all"}))
			return
		}

		products, customers, err := svc.RefreshTimes(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out.ProductsRefreshedAt, out.CustomersRefreshedAt = products, customers
		responses.WriteSuccess(w, out)
	}
}

func parsePage(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: validators.ParseQueryString(r, "cursor")}, nil
}

func CacheProducts(repo CacheReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cache unavailable"))
			return
		}
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := repo.ListProducts(r.Context(), refcache.ProductQuery{
			Search:  validators.ParseQueryString(r, "q"),
			Barcode: validators.ParseQueryString(r, "barcode"),
			Page:    page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.NewPage(rows, next))
	}
}

func CacheCustomers(repo CacheReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cache unavailable"))
			return
		}
		page, err := parsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := repo.ListCustomers(r.Context(), refcache.CustomerQuery{
			Search: validators.ParseQueryString(r, "q"),
			Page:   page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.NewPage(rows, next))
	}
}
