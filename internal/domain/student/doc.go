// Package student содержит доменную модель ученика академии.
//
// Пакет определяет:
//
//   - Сущность Student с составом (main/reserve) и статусом (active/inactive)
//   - Переход Promote: перевод ученика из резерва в основную халаку
//   - Интерфейс репозитория Repository, реализуемый в infrastructure/persistence
//
// # Жизненный цикл
//
// Движок жизненного цикла меняет ученика только при переходах состава:
//
//	reserve --(check-promotion)--> main
//	main    --(внешний исполнитель по DemotionAlert)--> reserve
//
// Понижение выполняет внешний исполнитель; здесь оно только моделируется,
// чтобы переходы были симметричны.
package student
