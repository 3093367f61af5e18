// Package service implements the admin actions behind the HTTP API: catalog
// CRUD, trade recording, balance settlement, and reporting. Role scoping
// happens here so both store implementations stay policy-free.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"stocklane/backend/internal/cache"
	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

// ErrForbidden marks an action the actor's role does not permit.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	cache    cache.ListingCache
	cacheTTL time.Duration
	log      *logrus.Logger
	validate *validator.Validate
}

func New(repo store.Repository, listingCache cache.ListingCache, cacheTTL time.Duration, log *logrus.Logger) *Service {
	if listingCache == nil {
		listingCache = cache.NoopListingCache{}
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}

	return &Service{
		repo:     repo,
		cache:    listingCache,
		cacheTTL: cacheTTL,
		log:      log,
		validate: validator.New(),
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// scopeBranch resolves the branch filter an actor may use: admins pass their
// requested filter through, staff are pinned to the branch on their token.
func (s *Service) scopeBranch(ctx context.Context, requested string) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.IsAdmin() {
		return requested
	}
	return actor.Branch
}

func (s *Service) checkRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, err)
	}
	return nil
}

// ---- branches -------------------------------------------------------------

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Branch{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.Branch{}, err
	}

	created, err := s.repo.CreateBranch(ctx, domain.Branch{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Branch{}, err
	}
	s.invalidate(ctx, "branches")
	return *created, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var cached []domain.Branch
	if s.fromCache(ctx, "branches", &cached) {
		return cached, nil
	}
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "branches", branches)
	return branches, nil
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchUpdateRequest) (*domain.Branch, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	existing, err := s.findBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateBranch(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "branches")
	return saved, nil
}

// DeleteBranch reports whether a row was removed. A malformed or unknown id
// is a no-op, mirroring a lookup that finds nothing.
func (s *Service) DeleteBranch(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteBranch(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "branches")
	return true, nil
}

func (s *Service) findBranch(ctx context.Context, id string) (*domain.Branch, error) {
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	for i := range branches {
		if branches[i].ID == id {
			return &branches[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// ---- brands ---------------------------------------------------------------

func (s *Service) CreateBrand(ctx context.Context, req domain.BrandCreateRequest) (domain.Brand, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Brand{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.Brand{}, err
	}

	created, err := s.repo.CreateBrand(ctx, domain.Brand{Name: strings.TrimSpace(req.Name)})
	if err != nil {
		return domain.Brand{}, err
	}
	s.invalidate(ctx, "brands")
	return *created, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	var cached []domain.Brand
	if s.fromCache(ctx, "brands", &cached) {
		return cached, nil
	}
	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "brands", brands)
	return brands, nil
}

func (s *Service) UpdateBrand(ctx context.Context, id string, req domain.BrandUpdateRequest) (*domain.Brand, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return nil, err
	}
	var existing *domain.Brand
	for i := range brands {
		if brands[i].ID == id {
			existing = &brands[i]
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}

	saved, err := s.repo.UpdateBrand(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "brands")
	return saved, nil
}

func (s *Service) DeleteBrand(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "brands")
	return true, nil
}

// ---- categories -----------------------------------------------------------

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: strings.TrimSpace(req.Name)})
	if err != nil {
		return domain.Category{}, err
	}
	s.invalidate(ctx, "categories")
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var cached []domain.Category
	if s.fromCache(ctx, "categories", &cached) {
		return cached, nil
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "categories", categories)
	return categories, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (*domain.Category, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	var existing *domain.Category
	for i := range categories {
		if categories[i].ID == id {
			existing = &categories[i]
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "categories")
	return saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "categories")
	return true, nil
}

// ---- tax rates ------------------------------------------------------------

func (s *Service) CreateTaxRate(ctx context.Context, req domain.TaxRateCreateRequest) (domain.TaxRate, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.TaxRate{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.TaxRate{}, err
	}
	if req.Rate.IsNegative() {
		return domain.TaxRate{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateTaxRate(ctx, domain.TaxRate{
		Name: strings.TrimSpace(req.Name),
		Rate: req.Rate,
	})
	if err != nil {
		return domain.TaxRate{}, err
	}
	s.invalidate(ctx, "tax_rates")
	return *created, nil
}

func (s *Service) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	var cached []domain.TaxRate
	if s.fromCache(ctx, "tax_rates", &cached) {
		return cached, nil
	}
	rates, err := s.repo.ListTaxRates(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "tax_rates", rates)
	return rates, nil
}

func (s *Service) UpdateTaxRate(ctx context.Context, id string, req domain.TaxRateUpdateRequest) (*domain.TaxRate, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	rates, err := s.repo.ListTaxRates(ctx)
	if err != nil {
		return nil, err
	}
	var existing *domain.TaxRate
	for i := range rates {
		if rates[i].ID == id {
			existing = &rates[i]
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Rate != nil {
		if req.Rate.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.Rate = *req.Rate
	}

	saved, err := s.repo.UpdateTaxRate(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "tax_rates")
	return saved, nil
}

func (s *Service) DeleteTaxRate(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteTaxRate(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "tax_rates")
	return true, nil
}

// ---- expense categories ---------------------------------------------------

func (s *Service) CreateExpenseCategory(ctx context.Context, req domain.ExpenseCategoryCreateRequest) (domain.ExpenseCategory, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.ExpenseCategory{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.ExpenseCategory{}, err
	}

	created, err := s.repo.CreateExpenseCategory(ctx, domain.ExpenseCategory{Name: strings.TrimSpace(req.Name)})
	if err != nil {
		return domain.ExpenseCategory{}, err
	}
	s.invalidate(ctx, "expense_categories")
	return *created, nil
}

func (s *Service) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	var cached []domain.ExpenseCategory
	if s.fromCache(ctx, "expense_categories", &cached) {
		return cached, nil
	}
	categories, err := s.repo.ListExpenseCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "expense_categories", categories)
	return categories, nil
}

func (s *Service) UpdateExpenseCategory(ctx context.Context, id string, req domain.ExpenseCategoryUpdateRequest) (*domain.ExpenseCategory, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	categories, err := s.repo.ListExpenseCategories(ctx)
	if err != nil {
		return nil, err
	}
	var existing *domain.ExpenseCategory
	for i := range categories {
		if categories[i].ID == id {
			existing = &categories[i]
			break
		}
	}
	if existing == nil {
		return nil, store.ErrNotFound
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}

	saved, err := s.repo.UpdateExpenseCategory(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "expense_categories")
	return saved, nil
}

func (s *Service) DeleteExpenseCategory(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteExpenseCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "expense_categories")
	return true, nil
}

// ---- products -------------------------------------------------------------

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkRequest(req); err != nil {
		return domain.Product{}, err
	}
	if req.ExcTax.IsNegative() || req.IncTax.IsNegative() || req.SellingPrice.IsNegative() {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:         strings.TrimSpace(req.Name),
		SKU:          strings.ToUpper(strings.TrimSpace(req.SKU)),
		BranchID:     req.BranchID,
		BrandID:      req.BrandID,
		CategoryID:   req.CategoryID,
		TaxRateID:    req.TaxRateID,
		Stock:        req.Stock,
		ExcTax:       req.ExcTax,
		IncTax:       req.IncTax,
		SellingPrice: req.SellingPrice,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidate(ctx, "products")
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context, query domain.ListQuery) ([]domain.Product, int64, error) {
	query.BranchID = s.scopeBranch(ctx, query.BranchID)
	return s.repo.ListProducts(ctx, query)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.BrandID != nil {
		if !oid.Valid(*req.BrandID) {
			return nil, store.ErrInvalidInput
		}
		updated.BrandID = *req.BrandID
	}
	if req.CategoryID != nil {
		if !oid.Valid(*req.CategoryID) {
			return nil, store.ErrInvalidInput
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.TaxRateID != nil {
		if *req.TaxRateID != "" && !oid.Valid(*req.TaxRateID) {
			return nil, store.ErrInvalidInput
		}
		updated.TaxRateID = *req.TaxRateID
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.ExcTax != nil {
		if req.ExcTax.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.ExcTax = *req.ExcTax
	}
	if req.IncTax != nil {
		if req.IncTax.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.IncTax = *req.IncTax
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.SellingPrice = *req.SellingPrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "products")
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "products")
	return true, nil
}

func (s *Service) ProductDropdown(ctx context.Context, branchID string) ([]domain.ProductOption, error) {
	branchID = s.scopeBranch(ctx, branchID)
	key := "products:dropdown:" + branchID
	var cached []domain.ProductOption
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	options, err := s.repo.ProductDropdown(ctx, branchID)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, options)
	return options, nil
}

// ---- customers ------------------------------------------------------------

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.Customer{}, err
	}
	if req.OpeningBalance.IsNegative() {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.invalidate(ctx, "customers")
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context, query domain.ListQuery) ([]domain.Customer, int64, error) {
	return s.repo.ListCustomers(ctx, query)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "customers")
	return saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "customers")
	return true, nil
}

func (s *Service) CustomerDropdown(ctx context.Context) ([]domain.PartyOption, error) {
	var cached []domain.PartyOption
	if s.fromCache(ctx, "customers:dropdown", &cached) {
		return cached, nil
	}
	options, err := s.repo.CustomerDropdown(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "customers:dropdown", options)
	return options, nil
}

// ---- suppliers ------------------------------------------------------------

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.Supplier{}, err
	}
	if req.OpeningBalance.IsNegative() {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.invalidate(ctx, "suppliers")
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context, query domain.ListQuery) ([]domain.Supplier, int64, error) {
	return s.repo.ListSuppliers(ctx, query)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	existing, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "suppliers")
	return saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	s.invalidate(ctx, "suppliers")
	return true, nil
}

func (s *Service) SupplierDropdown(ctx context.Context) ([]domain.PartyOption, error) {
	var cached []domain.PartyOption
	if s.fromCache(ctx, "suppliers:dropdown", &cached) {
		return cached, nil
	}
	options, err := s.repo.SupplierDropdown(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, "suppliers:dropdown", options)
	return options, nil
}

// ---- cache plumbing -------------------------------------------------------

func (s *Service) fromCache(ctx context.Context, key string, out any) bool {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("listing cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("listing cache payload corrupt")
		return false
	}
	return true
}

func (s *Service) toCache(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("listing cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, prefix string) {
	if err := s.cache.Invalidate(ctx, prefix); err != nil {
		s.log.WithError(err).WithField("prefix", prefix).Warn("listing cache invalidation failed")
	}
}
