package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/pos-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware POS-сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/categories", h.GetCategories)
			r.Get("/products", h.GetProducts)
			r.Get("/settings", h.GetSettings)
			r.Get("/discounts", h.GetDiscounts)

			r.Get("/members", h.GetMembers)
			r.Post("/members", h.CreateMember)
			r.Get("/members/code/{code}", h.GetMemberByCode)

			r.Post("/checkout", h.Checkout)
			r.Get("/sales", h.GetSales)
			r.Get("/sales/{id}", h.GetSale)

			// Управление каталогом, скидками и настройками доступно
			// только администратору.
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)

				r.Post("/categories", h.CreateCategory)
				r.Put("/categories/{id}", h.UpdateCategory)
				r.Delete("/categories/{id}", h.DeleteCategory)

				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)

				r.Put("/settings", h.UpdateSettings)

				r.Post("/discounts", h.CreateDiscount)
				r.Put("/discounts/{id}", h.UpdateDiscount)
				r.Delete("/discounts/{id}", h.DeleteDiscount)

				r.Put("/members/{id}", h.UpdateMember)
				r.Delete("/members/{id}", h.DeleteMember)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
