// Command coupons-demo runs the marketplace scenario in-process against a local
// sqlite file: the administrator enrolls a company and customers, the company
// publishes coupons and every customer races to buy the same one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gartstein/coupons/internal/coupons/controller"
	"github.com/gartstein/coupons/internal/coupons/db"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/models"
	"github.com/gartstein/coupons/internal/coupons/sweeper"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("dir", "", "directory for the sqlite file (default: a fresh temp dir)")
	poolSize := flag.Int("pool", 20, "number of pooled connections")
	buyers := flag.Int("buyers", 150, "number of concurrent customers")
	stock := flag.Int("stock", 100, "initial amount of the contested coupon")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *dir == "" {
		tmp, err := os.MkdirTemp("", "coupons-demo")
		if err != nil {
			logger.Fatal("Failed to create temp dir", zap.Error(err))
		}
		defer os.RemoveAll(tmp)
		*dir = tmp
	}

	cfg := &db.Config{
		Driver:   db.DriverSQLite,
		Path:     filepath.Join(*dir, "coupons.db"),
		PoolSize: *poolSize,
	}
	ctx := context.Background()
	repo, err := db.NewRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(ctx); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
	}()

	if err := runScenario(ctx, repo, logger, *buyers, *stock); err != nil {
		logger.Error("Scenario failed", zap.Error(err))
		return
	}
}

func runScenario(ctx context.Context, repo *db.Repository, logger *zap.Logger, buyers, stock int) error {
	manager := controller.NewLoginManager(repo, events.NopProducer{}, logger)

	facade, err := manager.Login(ctx, controller.DefaultAdminEmail, controller.DefaultAdminPassword, controller.Administrator)
	if err != nil {
		return err
	}
	admin := facade.(*controller.AdminFacade)

	toyota := &models.Company{Name: "toyota", Email: "toyota@gmail.com", Password: "toyota"}
	if err := admin.AddCompany(ctx, toyota); err != nil {
		return err
	}
	if err := admin.AddCompany(ctx, &models.Company{Name: "toyota", Email: "other@gmail.com", Password: "x"}); !errors.Is(err, e.ErrAlreadyExists) {
		return fmt.Errorf("duplicate company accepted: %v", err)
	}
	toyota.Email = "changed@gmail.com"
	if err := admin.UpdateCompany(ctx, toyota); !errors.Is(err, e.ErrFieldNotMutable) {
		return fmt.Errorf("company email change accepted: %v", err)
	}

	facade, err = manager.Login(ctx, "toyota@gmail.com", "toyota", controller.CompanyClient)
	if err != nil {
		return err
	}
	company := facade.(*controller.CompanyFacade)

	today := models.Date(time.Now())
	car := &models.Coupon{
		Category:    models.Electricity,
		Title:       "Electric car",
		Description: "Discount on an electric car",
		StartDate:   today,
		EndDate:     today.AddDate(1, 0, 0),
		Amount:      stock,
		Price:       100,
		Image:       "car.png",
	}
	if err := company.AddCoupon(ctx, car); err != nil {
		return err
	}
	lapsed := &models.Coupon{
		Category:  models.Vacation,
		Title:     "Last summer",
		StartDate: today.AddDate(0, -3, 0),
		EndDate:   today.AddDate(0, 0, -1),
		Amount:    10,
		Price:     500,
	}
	if err := company.AddCoupon(ctx, lapsed); err != nil {
		return err
	}

	customers := make([]*controller.CustomerFacade, 0, buyers)
	for i := 0; i < buyers; i++ {
		email := fmt.Sprintf("customer%03d@gmail.com", i)
		err := admin.AddCustomer(ctx, &models.Customer{
			FirstName: "Customer",
			LastName:  fmt.Sprint(i),
			Email:     email,
			Password:  "pw",
		})
		if err != nil {
			return err
		}
		facade, err := manager.Login(ctx, email, "pw", controller.CustomerClient)
		if err != nil {
			return err
		}
		customers = append(customers, facade.(*controller.CustomerFacade))
	}

	var (
		wg                              sync.WaitGroup
		succeeded, outOfStock, failures atomic.Int64
	)
	for _, customer := range customers {
		wg.Add(1)
		go func(c *controller.CustomerFacade) {
			defer wg.Done()
			err := c.PurchaseCoupon(ctx, car.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, e.ErrOutOfStock):
				outOfStock.Add(1)
			default:
				failures.Add(1)
				logger.Error("Unexpected purchase failure", zap.Error(err))
			}
		}(customer)
	}
	wg.Wait()

	listed, err := company.GetCompanyCoupons(ctx)
	if err != nil {
		return err
	}
	remaining := -1
	for _, c := range listed {
		if c.ID == car.ID {
			remaining = c.Amount
		}
	}
	logger.Info("Purchase race finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("out_of_stock", outOfStock.Load()),
		zap.Int64("failed", failures.Load()),
		zap.Int("remaining", remaining),
	)

	if len(customers) > 0 {
		if err := customers[0].PurchaseCoupon(ctx, lapsed.ID); !errors.Is(err, e.ErrDateExpired) {
			return fmt.Errorf("expired coupon sold: %v", err)
		}
	}

	deleted, err := sweeper.New(repo, events.NopProducer{}, time.Hour, logger).Sweep(ctx)
	if err != nil {
		return err
	}
	logger.Info("Expired coupons swept", zap.Int("deleted", deleted))

	if err := admin.DeleteCompany(ctx, toyota.ID); err != nil {
		return err
	}
	if _, err := admin.GetOneCompany(ctx, toyota.ID); !errors.Is(err, e.ErrNotFound) {
		return fmt.Errorf("company survived deletion: %v", err)
	}
	logger.Info("Scenario complete")
	return nil
}
